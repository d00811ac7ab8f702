package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/server"
)

// listen starts the server. Tests replace it.
var listen = func(ctx context.Context, srv *server.Server, addr string) error {
	return srv.ListenAndServe(ctx, addr)
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Expose the device over HTTP and a websocket screen stream",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "listen",
			Aliases: []string{"l"},
			Value:   ":5800",
			Usage:   "Address to listen on",
			EnvVars: []string{"ADBAUTO_LISTEN"},
		},
		&cli.DurationFlag{
			Name:  "interval",
			Value: server.DefaultFrameInterval,
			Usage: "Screen stream frame interval",
		},
	},
	Action: func(c *cli.Context) error {
		return withAutomator(c, func(a *automator.Automator) error {
			srv := server.New(a)
			srv.FrameInterval = c.Duration("interval")

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()

			addr := c.String("listen")
			fmt.Fprintf(c.App.Writer, "Serving %s on %s (frames every %s)\n",
				a.Serial(), addr, srv.FrameInterval.Round(time.Millisecond))
			return listen(ctx, srv, addr)
		})
	},
}
