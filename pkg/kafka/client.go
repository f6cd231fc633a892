// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"offshore-assist-go/internal/config"
	"offshore-assist-go/pkg/log"
	"offshore-assist-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor decouples the consumer from the concrete ingestion service.
type TaskProcessor interface {
	ProcessTask(ctx context.Context, task tasks.IngestTask) error
}

// Producer 发送导入任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// ProduceIngestTask 发送一个导入任务到 Kafka。
func (p *Producer) ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.TaskID), Value: taskBytes})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动消费者，逐条同步处理导入任务，直到 ctx 取消。
// 导入本身是整表重建，失败的任务不重投，只记录日志后提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.IngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else {
			log.Infof("开始处理导入任务: TaskID=%s, Source=%s", task.TaskID, task.Source)
			if err := processor.ProcessTask(ctx, task); err != nil {
				log.Errorf("导入任务失败: TaskID=%s, Error: %v", task.TaskID, err)
			} else {
				log.Infof("导入任务完成: TaskID=%s", task.TaskID)
			}
		}

		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
