package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/mgray/tempest/examples/chat"
	"github.com/mgray/tempest/internal/workers"
	"github.com/mgray/tempest/pkg/connection"
	"github.com/mgray/tempest/pkg/logs"
	"github.com/mgray/tempest/pkg/message"
	"github.com/mgray/tempest/pkg/probe"
	"github.com/mgray/tempest/pkg/registry"
	"github.com/mgray/tempest/pkg/server"
)

var (
	nickFlag = cli.StringFlag{
		Name:  "nick",
		Value: "anon",
		Usage: "chat nick",
	}
	roomFlag = cli.StringFlag{
		Name:  "room",
		Value: "lobby",
		Usage: "chat room",
	}
	textFlag = cli.StringFlag{
		Name:  "text",
		Usage: "message to say",
	}
	countFlag = cli.IntFlag{
		Name:  "count",
		Value: 0,
		Usage: "stop after this many frames, 0 reads until the peer closes",
	}

	listenCommand = cli.Command{
		Name:   "listen",
		Usage:  "run a chat room server",
		Flags:  []cli.Flag{addrFlag},
		Action: listenAction,
	}
	sendCommand = cli.Command{
		Name:   "send",
		Usage:  "join a chat room, say something and leave",
		Flags:  []cli.Flag{addrFlag, nickFlag, roomFlag, textFlag},
		Action: sendAction,
	}
	probeCommand = cli.Command{
		Name:   "probe",
		Usage:  "dump raw frames received from a server",
		Flags:  []cli.Flag{addrFlag, countFlag},
		Action: probeAction,
	}
)

func chatRegistry() (*registry.Registry, error) {
	reg := registry.NewRegistry(nil)
	if err := chat.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func newPool() (*workers.Pool, error) {
	return workers.NewPool(config.WorkerPoolSize)
}

func listenAction(ctx *cli.Context) error {
	logger := logs.NewLogger("Listen")
	reg, err := chatRegistry()
	if err != nil {
		return err
	}
	pool, err := newPool()
	if err != nil {
		return err
	}
	defer pool.Release()

	room, err := chat.NewRoom(reg,
		server.PoolOption(pool),
		server.ConnectionOptions(connection.ConfigOption(config), connection.PoolOption(pool)),
		server.OnAcceptedOption(func(c *connection.Connection) {
			logger.Infof("%s connected", c.RemoteAddr())
		}),
	)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", ctx.String(addrFlag.Name))
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Infof("shutting down")
		_ = room.Close()
	}()
	return room.Serve(ln)
}

func sendAction(ctx *cli.Context) error {
	logger := logs.NewLogger("Send")
	addr, err := net.ResolveTCPAddr("tcp", ctx.String(addrFlag.Name))
	if err != nil {
		return err
	}
	reg, err := chatRegistry()
	if err != nil {
		return err
	}

	outcome := make(chan error, 1)
	cc, err := connection.NewClientConnection(reg,
		connection.ConfigOption(config),
		connection.OnConnectedOption(func(*connection.Connection) { outcome <- nil }),
		connection.OnConnectionFailedOption(func(_ *connection.Connection, err error) { outcome <- err }),
		connection.OnMessageOption(func(_ *connection.Connection, m message.Message) {
			logger.Infof("received %T: %+v", m, m)
		}),
	)
	if err != nil {
		return err
	}
	if err := cc.Connect(addr, connection.Reliable); err != nil {
		return err
	}
	if err := <-outcome; err != nil {
		return err
	}

	nick := ctx.String(nickFlag.Name)
	msgs := []message.Message{&chat.Join{Nick: nick, Room: ctx.String(roomFlag.Name)}}
	if text := ctx.String(textFlag.Name); text != "" {
		msgs = append(msgs, &chat.Say{Nick: nick, Text: text, At: time.Now()})
	}
	msgs = append(msgs, &chat.Leave{Nick: nick, Reason: "done"})
	for _, m := range msgs {
		if err := cc.Send(m); err != nil {
			return err
		}
	}

	// Disconnect drops queued frames, so let the writer catch up first
	deadline := time.Now().Add(config.WriteTimeout)
	for cc.Stats().FramesSent < uint64(len(msgs)) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := cc.Disconnect(); err != nil {
		return err
	}
	<-cc.Done()
	logger.Infof("sent %d frames", cc.Stats().FramesSent)
	return nil
}

func probeAction(ctx *cli.Context) error {
	conn, err := net.DialTimeout("tcp", ctx.String(addrFlag.Name), config.DialTimeout)
	if err != nil {
		return err
	}
	p := probe.New(conn)
	defer p.Close()

	limit := ctx.Int(countFlag.Name)
	for n := 0; limit == 0 || n < limit; n++ {
		f, err := p.ReadFrame()
		if err != nil {
			if pkgerrors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fmt.Println(f)
	}
	return nil
}
