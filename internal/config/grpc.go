package config

import "time"

// GRPCConfig configures the evaluation gRPC server.
type GRPCConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Port    string `envconfig:"PORT" default:"50051"`
	Host    string `envconfig:"HOST" default:"0.0.0.0"`

	MaxConcurrentStreams uint32        `envconfig:"MAX_CONCURRENT_STREAMS" default:"100"`
	KeepaliveTime        time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout     time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxConnectionAge     time.Duration `envconfig:"MAX_CONNECTION_AGE" default:"300s"`
}

// Addr returns host:port for net.Listen.
func (c *GRPCConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// Validate performs validation on the GRPCConfig. A disabled server is not checked.
func (c *GRPCConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validatePort(c.Port, "grpc"); err != nil {
		return err
	}
	return validateHost(c.Host, "grpc")
}
