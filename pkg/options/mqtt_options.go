package options

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/skycourier-io/skycourier/pkg/mqtt"
)

var _ IOptions = (*MQTTOptions)(nil)

// MQTTOptions contains configuration for the MQTT client and topic layout
// used by the MQTT-backed vehicle control link.
type MQTTOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's
	// certificate chain and host name. Testing only.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot prefixes every vehicle topic: {TopicRoot}/{vehicleID}/...
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
}

// NewMQTTOptions creates a new MQTTOptions with default values.
func NewMQTTOptions() *MQTTOptions {
	return &MQTTOptions{
		Broker:         "tcp://127.0.0.1:1883",
		ClientID:       "skyc-dispatch",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
		TopicRoot:      "fleet",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MQTTOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	cfg := o.ToClientConfig()
	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags related to the MQTT link to the specified FlagSet.
func (o *MQTTOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "MQTT broker URL for the vehicle control link.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "Username for the MQTT broker.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "Password for the MQTT broker.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Client ID for the MQTT connection.")
	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT keep-alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for the initial broker connection.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start a clean MQTT session.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "Skip TLS certificate verification (testing only).")
	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Root segment for vehicle topics.")
}

// ToClientConfig converts the options to a mqtt.ClientConfig.
func (o *MQTTOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		ClientID:           o.ClientID,
		Username:           o.Username,
		Password:           o.Password,
		KeepAlive:          uint16(o.KeepAlive / time.Second),
		ConnectTimeout:     o.ConnectTimeout,
		SessionExpiry:      o.SessionExpiry,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
