// Package kafka wraps watermill's Kafka pub/sub for the raw and
// preprocessed usage-event topics, spec §4.5/§6. Grounded on
// vidinfra-flexprice/internal/kafka/{base,producer,consumer}.go.
package kafka

import (
	"github.com/Shopify/sarama"
	"github.com/meteroid-oss/meteroid-sub006/internal/config"
)

func GetSaramaConfig(cfg *config.Configuration) *sarama.Config {
	if !cfg.Kafka.UseSASL {
		return nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_1_0_0
	saramaConfig.Net.SASL.Enable = true
	saramaConfig.Net.TLS.Enable = true
	saramaConfig.Net.SASL.Mechanism = sarama.SASLTypePlaintext
	saramaConfig.Net.SASL.User = cfg.Kafka.SASLUser
	saramaConfig.Net.SASL.Password = cfg.Kafka.SASLPassword
	saramaConfig.ClientID = cfg.Kafka.ClientID

	return saramaConfig
}
