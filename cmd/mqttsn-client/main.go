package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/golang-io/mqttsn"
	"github.com/urfave/cli/v3"
)

const linkWidth = 64

var (
	flagListen    = &cli.StringFlag{Name: "listen", Value: "0.0.0.0:0", Usage: "UDP listen address"}
	flagGateway   = &cli.StringFlag{Name: "gateway", Value: "127.0.0.1:1884", Usage: "gateway UDP address"}
	flagGatewayID = &cli.UintFlag{Name: "gwid", Value: 1, Usage: "gateway id"}
	flagClientID  = &cli.StringFlag{Name: "client-id", Value: "", Usage: "client identifier"}
	flagQoS       = &cli.UintFlag{Name: "qos", Value: 1, Usage: "quality of service (0..2)"}
	flagKeepalive = &cli.UintFlag{Name: "keepalive", Value: 60, Usage: "keep-alive seconds"}
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cmd := &cli.Command{
		Name:  "mqttsn-client",
		Usage: "MQTT-SN client tool",
		Flags: []cli.Flag{flagListen, flagGateway, flagGatewayID, flagClientID, flagQoS, flagKeepalive},
		Commands: []*cli.Command{
			{
				Name:      "publish",
				Usage:     "register a topic and publish one message",
				ArgsUsage: "<topic> <payload>",
				Action:    publishAction,
			},
			{
				Name:      "subscribe",
				Usage:     "subscribe and print messages until interrupted",
				ArgsUsage: "<topic-filter>",
				Action:    subscribeAction,
			},
			{
				Name:   "ping",
				Usage:  "probe the gateway",
				Action: pingAction,
			},
			{
				Name:   "search",
				Usage:  "broadcast SEARCHGW and print discovered gateways",
				Action: searchAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// session brings up the link, adds the gateway and connects.
func session(cmd *cli.Command, connect bool) (*mqttsn.Client, uint8, error) {
	laddr, err := net.ResolveUDPAddr("udp4", cmd.String("listen"))
	if err != nil {
		return nil, 0, err
	}
	gaddr, err := net.ResolveUDPAddr("udp4", cmd.String("gateway"))
	if err != nil {
		return nil, 0, err
	}
	gwid := uint8(cmd.Uint("gwid"))

	link := mqttsn.NewUDPLink(linkWidth)
	opts := []mqttsn.Option{}
	if id := cmd.String("client-id"); id != "" {
		opts = append(opts, mqttsn.ClientID(id))
	}
	client := mqttsn.NewClient(link, opts...)
	if !client.Initialise(mqttsn.EncodeUDPAddr(laddr), mqttsn.EncodeUDPAddr(gaddr), link.AddressLen()) {
		return nil, 0, errors.New("link initialise failed")
	}
	if err := client.AddGateway(mqttsn.EncodeUDPAddr(gaddr), gwid, 0, true); err != nil {
		return nil, 0, err
	}
	if !connect {
		return client, gwid, nil
	}

	connected := make(chan bool, 1)
	client.OnConnected(func(success bool, rc uint8, _ uint8) {
		connected <- success
	})
	if err := client.Connect(gwid, false, true, uint16(cmd.Uint("keepalive"))); err != nil {
		return nil, 0, err
	}
	if !manageUntil(client, connected, 10*time.Second) {
		return nil, 0, errors.New("connect failed")
	}
	return client, gwid, nil
}

// manageUntil ticks the engine until done yields true or the deadline
// passes.
func manageUntil(client *mqttsn.Client, done <-chan bool, timeout time.Duration) bool {
	deadline := time.After(timeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case ok := <-done:
			return ok
		case <-deadline:
			return false
		case <-tick.C:
			client.Manage()
		}
	}
}

// manageLoop ticks the engine in the background until stop closes.
func manageLoop(client *mqttsn.Client, stop <-chan struct{}) {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			client.Manage()
		}
	}
}

func publishAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return errors.New("usage: publish <topic> <payload>")
	}
	name, payload := cmd.Args().Get(0), cmd.Args().Get(1)
	qos := uint8(cmd.Uint("qos"))

	client, _, err := session(cmd, true)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	registered := make(chan uint16, 1)
	client.OnRegistered(func(success bool, rc uint8, topicID, _ uint16, _ uint8) {
		if success {
			registered <- topicID
		} else {
			registered <- 0
		}
	})
	published := make(chan bool, 1)
	client.OnPublished(func(success bool, rc uint8, _, _ uint16, _ uint8) {
		published <- success
	})

	stop := make(chan struct{})
	defer close(stop)
	go manageLoop(client, stop)

	if _, err := client.RegisterTopic(name); err != nil {
		return err
	}
	var topicID uint16
	select {
	case topicID = <-registered:
	case <-time.After(5 * time.Second):
	}
	if topicID == 0 {
		return errors.New("topic registration failed")
	}

	if _, err := client.Publish(qos, topicID, 0, []byte(payload), false); err != nil {
		return err
	}
	if qos == 0 {
		fmt.Println("published (qos 0)")
		return client.Disconnect(0)
	}
	select {
	case ok := <-published:
		if !ok {
			return errors.New("publish failed")
		}
		fmt.Println("published")
	case <-time.After(10 * time.Second):
		return errors.New("publish timed out")
	}
	return client.Disconnect(0)
}

func subscribeAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("usage: subscribe <topic-filter>")
	}
	filter := cmd.Args().Get(0)
	qos := uint8(cmd.Uint("qos"))

	client, gwid, err := session(cmd, true)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	client.OnMessage(func(_ bool, _ uint8, topicName string, payload []byte, _ uint8) {
		fmt.Printf("%s %s\n", topicName, payload)
	})
	if _, err := client.Subscribe(qos, filter, false); err != nil {
		return err
	}
	log.Printf("subscribed: filter=%s, gwid=%d", filter, gwid)

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return client.Disconnect(0)
		case <-tick.C:
			client.Manage()
		}
	}
}

func pingAction(ctx context.Context, cmd *cli.Command) error {
	client, gwid, err := session(cmd, false)
	if err != nil {
		return err
	}
	defer client.Shutdown()
	if err := client.Ping(gwid); err != nil {
		return err
	}
	time.Sleep(time.Second)
	client.Manage()
	fmt.Printf("ping sent to gateway %d\n", gwid)
	return nil
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	client, _, err := session(cmd, false)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	found := make(chan bool, 1)
	client.OnGatewayInfo(func(available bool, gwid uint8) {
		if available {
			fmt.Printf("gateway %d available\n", gwid)
			found <- true
		}
	})
	if err := client.SearchGW(1); err != nil {
		return err
	}
	if !manageUntil(client, found, 5*time.Second) {
		return errors.New("no gateway answered")
	}
	return nil
}
