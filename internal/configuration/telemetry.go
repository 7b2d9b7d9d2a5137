package configuration

// TelemetryConfig configures where samples of a run are forwarded to.
// All forwarders are optional.
type TelemetryConfig struct {
	Kafka *KafkaTelemetryConfig `json:"kafka,omitempty"`
	Mqtt  *MqttTelemetryConfig  `json:"mqtt,omitempty"`
}

type KafkaTelemetryConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type MqttTelemetryConfig struct {
	Broker   string `json:"broker"`
	ClientId string `json:"clientId"`
	Topic    string `json:"topic"`
	Qos      byte   `json:"qos"`
}
