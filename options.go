package mqttsn

import (
	"time"

	"github.com/golang-io/requests"
)

type Listen struct {
	URL string `yaml:"url" json:"url"`
}

type config struct {
	HTTP              Listen            `yaml:"http" json:"HTTP"`
	Broker            Listen            `yaml:"broker" json:"Broker"`
	UDP               Listen            `yaml:"udp" json:"UDP"`
	Broadcast         Listen            `yaml:"broadcast" json:"Broadcast"`
	GatewayID         uint8             `yaml:"gatewayID" json:"GatewayID"`
	AdvertiseInterval uint16            `yaml:"advertiseInterval" json:"AdvertiseInterval"`
	PredefinedTopics  map[uint16]string `yaml:"predefinedTopics" json:"PredefinedTopics"`
}

var CONFIG = &config{
	GatewayID:         1,
	AdvertiseInterval: DefaultAdvertiseInterval,
}

type Options struct {
	ClientID          string
	GatewayID         uint8
	AdvertiseInterval uint16
	Tretry            time.Duration
	Nretry            uint16
}

type Option func(*Options)

func newOptions(opts ...Option) Options {
	options := Options{
		ClientID:          "mqttsn-" + requests.GenId(),
		GatewayID:         1,
		AdvertiseInterval: DefaultAdvertiseInterval,
		Tretry:            DefaultTretry,
		Nretry:            DefaultNretry,
	}
	for _, o := range opts {
		o(&options)
	}
	return options
}

// ClientID sets the client identifier sent in CONNECT and PINGREQ.
func ClientID(id string) Option {
	return func(o *Options) {
		o.ClientID = id
	}
}

// GatewayID sets the id a gateway advertises and answers SEARCHGW with.
func GatewayID(gwid uint8) Option {
	return func(o *Options) {
		o.GatewayID = gwid
	}
}

// AdvertiseInterval sets the seconds between ADVERTISE broadcasts.
func AdvertiseInterval(seconds uint16) Option {
	return func(o *Options) {
		o.AdvertiseInterval = seconds
	}
}

// RetryAttributes tunes the retry discipline for all connections.
func RetryAttributes(tretry time.Duration, nretry uint16) Option {
	return func(o *Options) {
		o.Tretry = tretry
		o.Nretry = nretry
	}
}
