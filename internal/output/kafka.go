package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/casks-mutters/zk-bytecode-stability/pkg/models"
)

// KafkaOutput Kafka报告输出器
// 监控模式下将检查结果发布到指定topic，供下游告警消费
type KafkaOutput struct {
	logger   *logrus.Logger
	topic    string
	producer sarama.SyncProducer
}

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(brokers []string, topic string, logger *logrus.Logger) (*KafkaOutput, error) {
	logger.Infof("初始化Kafka输出器，brokers: %v topic: %s", brokers, topic)

	// 配置Kafka生产者
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者已创建")

	return &KafkaOutput{
		logger:   logger,
		topic:    topic,
		producer: producer,
	}, nil
}

// WriteReport 发布报告到Kafka
func (k *KafkaOutput) WriteReport(report *models.StabilityReport) error {
	if report == nil {
		return nil
	}

	jsonData, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(report.Address),
		Value: sarama.ByteEncoder(jsonData),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送报告到Kafka失败: %w", err)
	}

	k.logger.Infof("报告已发布到Kafka topic '%s' (partition: %d, offset: %d) status=%s",
		k.topic, partition, offset, report.Status)

	return nil
}

// Close 关闭生产者
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		if err := k.producer.Close(); err != nil {
			return fmt.Errorf("关闭Kafka生产者失败: %w", err)
		}
	}
	return nil
}
