package database

import (
	"errors"
	"time"
)

type Config struct {
	Hosts       []string
	Keyspace    string
	Timeout     time.Duration
	Retries     int
	ConnectWait time.Duration
}

func NewConfig(host string, port string) *Config {
	return &Config{
		Hosts:       []string{host + ":" + port},
		Keyspace:    "triggerx_mirror",
		Timeout:     10 * time.Second,
		Retries:     3,
		ConnectWait: 10 * time.Second,
	}
}

func (c *Config) WithHosts(hosts []string) *Config {
	c.Hosts = hosts
	return c
}

func (c *Config) WithKeyspace(keyspace string) *Config {
	c.Keyspace = keyspace
	return c
}

func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return errors.New("at least one database host is required")
	}
	if c.Keyspace == "" {
		return errors.New("keyspace is required")
	}
	return nil
}
