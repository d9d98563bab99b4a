package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-io/mqttsn"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// linkWidth is the MQTT-SN frame bound on the UDP link. LAN deployments
// can afford more than a 32-octet radio.
const linkWidth = 64

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	c := flag.String("config", "./config/gateway.yaml", "Path to config file")
	flag.Parse()
	b, err := os.ReadFile(*c)
	if err != nil {
		log.Fatal(err)
	}
	if err = yaml.Unmarshal(b, mqttsn.CONFIG); err != nil {
		log.Fatalf("parse config: %v", err)
	}

	unicast, err := net.ResolveUDPAddr("udp4", mqttsn.CONFIG.UDP.URL)
	if err != nil {
		log.Fatalf("resolve udp listen address: %v", err)
	}
	broadcast, err := net.ResolveUDPAddr("udp4", mqttsn.CONFIG.Broadcast.URL)
	if err != nil {
		log.Fatalf("resolve broadcast address: %v", err)
	}

	link := mqttsn.NewUDPLink(linkWidth)
	server := mqttsn.NewServer(link,
		mqttsn.GatewayID(mqttsn.CONFIG.GatewayID),
		mqttsn.AdvertiseInterval(mqttsn.CONFIG.AdvertiseInterval),
	)
	if !server.Initialise(mqttsn.EncodeUDPAddr(unicast), mqttsn.EncodeUDPAddr(broadcast), link.AddressLen()) {
		log.Fatal("link initialise failed")
	}
	defer server.Shutdown()

	for id, name := range mqttsn.CONFIG.PredefinedTopics {
		if err := server.CreatePredefinedTopic(id, name); err != nil {
			log.Fatalf("predefined topic %d=%s: %v", id, name, err)
		}
	}

	bridge := mqttsn.NewPahoBridge(mqttsn.CONFIG.Broker.URL, server)
	server.SetBridge(bridge)
	if err := bridge.Connect(); err != nil {
		log.Fatalf("bridge connect: %v", err)
	}
	defer bridge.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if mqttsn.CONFIG.HTTP.URL == "" {
			return nil
		}
		return mqttsn.Httpd()
	})
	group.Go(func() error {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick.C:
				server.Manage()
			}
		}
	})
	err = group.Wait()
	log.Fatal(err)
}
