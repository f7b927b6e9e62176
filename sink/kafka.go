/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/stats"
)

// Kafka publishes raw payloads to one topic through an async producer.
// Only raw events are consumed; telemetry and log events must be encoded
// by an upstream filter first. The partition key is the hex rendering of
// the event's order-by, so a series keeps landing on one partition.
//
// Delivery accounting happens on flush: the sink blocks until every
// in-flight message has either been acknowledged, re-published after a
// retryable broker error, or dropped and counted. The valve closes while
// max-message-bytes of payload are in flight.
type Kafka struct {
	name       string
	topic      string
	maxBytes   int
	flushBeats uint64

	producer sarama.AsyncProducer

	inFlightBytes int
	inFlightMsgs  int
}

func NewKafka(cfg *config.KafkaConfig) (*Kafka, error) {
	sc := sarama.NewConfig()
	sc.ClientID = "cernan"
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.WithMessage(err, "could not start kafka producer")
	}

	return &Kafka{
		name:       "sinks.kafka",
		topic:      cfg.Topic,
		maxBytes:   cfg.MaxMessageBytes,
		flushBeats: cfg.FlushInterval,
		producer:   producer,
	}, nil
}

func (k *Kafka) Name() string { return k.name }

func (k *Kafka) Deliver(*metric.Telemetry) {}

func (k *Kafka) DeliverLine(*metric.LogLine) {}

func (k *Kafka) DeliverRaw(orderBy uint64, enc metric.Encoding, payload []byte) {
	k.drainSignals(false)

	msg := &sarama.ProducerMessage{
		Topic:    k.topic,
		Key:      sarama.StringEncoder(fmt.Sprintf("%X", orderBy)),
		Value:    sarama.ByteEncoder(payload),
		Metadata: len(payload),
	}
	k.producer.Input() <- msg
	k.inFlightBytes += len(payload)
	k.inFlightMsgs++
}

// Flush settles the in-flight window: block until every message has an
// outcome. Retryable broker errors put the message straight back on the
// producer and stay part of the window.
func (k *Kafka) Flush() {
	k.drainSignals(true)
}

func (k *Kafka) drainSignals(block bool) {
	for k.inFlightMsgs > 0 {
		if block {
			select {
			case msg := <-k.producer.Successes():
				k.onSuccess(msg)
			case perr := <-k.producer.Errors():
				k.onError(perr)
			}
		} else {
			select {
			case msg := <-k.producer.Successes():
				k.onSuccess(msg)
			case perr := <-k.producer.Errors():
				k.onError(perr)
			default:
				return
			}
		}
	}
}

func (k *Kafka) settle(msg *sarama.ProducerMessage) {
	k.inFlightMsgs--
	if size, ok := msg.Metadata.(int); ok {
		k.inFlightBytes -= size
	}
}

func (k *Kafka) onSuccess(msg *sarama.ProducerMessage) {
	k.settle(msg)
	stats.Inc("cernan.kafka.publish.success")
}

func (k *Kafka) onError(perr *sarama.ProducerError) {
	if perr.Msg == nil {
		stats.Inc("cernan.kafka.publish.retry_failure")
		logger.Error().Err(perr.Err).Msg("Kafka error carried no message to retry.")
		return
	}
	if retryableKafkaError(perr.Err) {
		stats.Inc("cernan.kafka.publish.retry")
		logger.Warn().Err(perr.Err).Str("topic", k.topic).Msg("Retrying kafka publish.")
		k.producer.Input() <- perr.Msg
		return
	}
	k.settle(perr.Msg)
	stats.Inc("cernan.kafka.publish.failure")
	logger.Error().Err(perr.Err).Str("topic", k.topic).Msg("Kafka publish failed. Dropping payload.")
}

// retryableKafkaError matches the broker errors worth re-publishing
// through: transient leadership, replication and coordinator conditions.
func retryableKafkaError(err error) bool {
	kerr, ok := err.(sarama.KError)
	if !ok {
		return false
	}
	switch kerr {
	case sarama.ErrUnknownTopicOrPartition,
		sarama.ErrLeaderNotAvailable,
		sarama.ErrNotLeaderForPartition,
		sarama.ErrRequestTimedOut,
		sarama.ErrNetworkException,
		sarama.ErrOffsetsLoadInProgress,
		sarama.ErrConsumerCoordinatorNotAvailable,
		sarama.ErrNotCoordinatorForConsumer,
		sarama.ErrNotEnoughReplicas,
		sarama.ErrNotEnoughReplicasAfterAppend,
		sarama.ErrNotController,
		sarama.ErrInvalidMessage:
		return true
	default:
		return false
	}
}

func (k *Kafka) Valve() ValveState {
	k.drainSignals(false)
	if k.inFlightBytes >= k.maxBytes {
		return Closed
	}
	return Open
}

func (k *Kafka) FlushInterval() (uint64, bool) { return k.flushBeats, true }

func (k *Kafka) Shutdown() {
	k.Flush()
	if err := k.producer.Close(); err != nil {
		logger.Error().Err(err).Msg("Kafka producer close failed.")
	}
}
