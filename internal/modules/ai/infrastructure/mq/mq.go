package mq

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// HeaderDedupKey 响应任务消息携带的去重键 header
const HeaderDedupKey = "dedup_key"

type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type Consumer interface {
	Run(ctx context.Context, handler Handler) error
	Close() error
}

// ResponseJobMessage 响应任务的线上格式：Value 为任务 id，
// Key 取去重键让同一触发消息+实体稳定落在同一分区
func ResponseJobMessage(topic string, jobId int64, dedupKey string) Message {
	key := []byte(dedupKey)
	if len(key) == 0 {
		key = []byte(strconv.FormatInt(jobId, 10))
	}
	return Message{
		Topic: topic,
		Key:   key,
		Value: []byte(strconv.FormatInt(jobId, 10)),
		Headers: map[string]string{
			HeaderDedupKey: dedupKey,
		},
	}
}

// ParseResponseJobId 解析消费到的响应任务消息，返回任务 id
func ParseResponseJobId(msg Message) (int64, error) {
	jobId, err := strconv.ParseInt(strings.TrimSpace(string(msg.Value)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed response job payload %q: %w", string(msg.Value), err)
	}
	return jobId, nil
}
