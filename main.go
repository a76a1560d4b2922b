package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/deemkeen/fedinbox/activitypub"
	"github.com/deemkeen/fedinbox/app"
	"github.com/deemkeen/fedinbox/util"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliApp := cli.App{
		Name:    util.Name,
		Usage:   "ActivityPub inbox for a small federated server",
		Version: util.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the config file",
				EnvVars: []string{"FEDINBOX_CONFIG"},
			},
		},
		Action: runServe,
	}
	cliApp.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP server and the delivery worker",
			Action: runServe,
		},
		cmdAccount,
		cmdRelay,
		{
			Name:      "fetch",
			Usage:     "dereference a remote object as the instance actor",
			ArgsUsage: "<uri>",
			Action:    runFetch,
		},
		{
			Name:      "verify",
			Usage:     "verify the linked data signature of a JSON document",
			ArgsUsage: "<file.json>",
			Action:    runVerify,
		},
	}
	return cliApp.Run(args)
}

var cmdAccount = &cli.Command{
	Name:  "account",
	Usage: "manage local accounts",
	Subcommands: []*cli.Command{
		{
			Name:      "create",
			Usage:     "create a local account with a fresh keypair",
			ArgsUsage: "<username>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "locked", Usage: "require approval of new followers"},
			},
			Action: runAccountCreate,
		},
	},
}

var cmdRelay = &cli.Command{
	Name:  "relay",
	Usage: "manage relay subscriptions",
	Subcommands: []*cli.Command{
		{
			Name:      "add",
			Usage:     "subscribe to a relay",
			ArgsUsage: "<relay host or actor uri>",
			Action:    runRelayAdd,
		},
		{
			Name:   "list",
			Usage:  "list relay subscriptions",
			Action: runRelayList,
		},
		{
			Name:      "remove",
			Usage:     "unsubscribe from a relay",
			ArgsUsage: "<relay host or actor uri>",
			Action:    runRelayRemove,
		},
	},
}

func loadConfig(cctx *cli.Context) (*util.AppConfig, error) {
	var conf *util.AppConfig
	var err error
	if path := cctx.String("config"); path != "" {
		conf, err = util.ReadConfFrom(path)
	} else {
		conf, err = util.ReadConf()
	}
	if err != nil {
		return nil, err
	}
	util.SetupLogging(conf.Conf.WithJournald, conf.Conf.LogLevel)
	return conf, nil
}

// openApp opens the stores for a one-shot command
func openApp(cctx *cli.Context) (*app.App, error) {
	conf, err := loadConfig(cctx)
	if err != nil {
		return nil, err
	}
	a, err := app.New(conf)
	if err != nil {
		return nil, err
	}
	if err := a.Open(cctx.Context); err != nil {
		return nil, err
	}
	return a, nil
}

func runServe(cctx *cli.Context) error {
	conf, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	slog.Info("starting " + util.GetNameAndVersion())
	slog.Debug("configuration", "conf", util.PrettyPrint(conf))

	if conf.Conf.WithPprof {
		go func() {
			slog.Info("pprof server listening", "addr", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				slog.Error("pprof server error", "err", err)
			}
		}()
	}

	application, err := app.New(conf)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Start(ctx)
}

func runAccountCreate(cctx *cli.Context) error {
	username := cctx.Args().First()
	if username == "" {
		return cli.Exit("a username is required", 1)
	}
	a, err := openApp(cctx)
	if err != nil {
		return err
	}
	defer a.Close()

	account, err := activitypub.CreateLocalAccount(cctx.Context, a.Deps(), username, cctx.Bool("locked"))
	if err != nil {
		return err
	}
	fmt.Println(a.Deps().Tags.AccountURI(account))
	return nil
}

func runRelayAdd(cctx *cli.Context) error {
	if cctx.Args().Len() != 1 {
		return cli.Exit("a relay is required", 1)
	}
	a, err := openApp(cctx)
	if err != nil {
		return err
	}
	defer a.Close()

	relay, err := activitypub.SubscribeRelay(cctx.Context, a.Deps(), cctx.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", relay.ActorURI, relay.State)
	return nil
}

func runRelayList(cctx *cli.Context) error {
	a, err := openApp(cctx)
	if err != nil {
		return err
	}
	defer a.Close()

	relays, err := a.Deps().Database.Relays(cctx.Context)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACTOR\tINBOX\tSTATE")
	for _, r := range relays {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ActorURI, r.InboxURI, r.State)
	}
	return w.Flush()
}

func runRelayRemove(cctx *cli.Context) error {
	if cctx.Args().Len() != 1 {
		return cli.Exit("a relay is required", 1)
	}
	a, err := openApp(cctx)
	if err != nil {
		return err
	}
	defer a.Close()

	actorURI := activitypub.NormalizeRelayURL(cctx.Args().First())
	relay, err := a.Deps().Database.FindRelayByActorURI(cctx.Context, actorURI)
	if err != nil {
		return err
	}
	if relay == nil {
		return cli.Exit("no subscription to "+actorURI, 1)
	}
	return activitypub.UnsubscribeRelay(cctx.Context, a.Deps(), relay)
}

func runFetch(cctx *cli.Context) error {
	uri := cctx.Args().First()
	if uri == "" {
		return cli.Exit("a uri is required", 1)
	}
	a, err := openApp(cctx)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := a.Deps()
	signer, err := deps.Tags.InstanceActor(cctx.Context)
	if err != nil {
		return err
	}
	doc, err := deps.Fetcher.Dereferencer(uri, "", signer).Object(cctx.Context)
	if err != nil {
		return err
	}
	if doc == nil {
		return cli.Exit("not found: "+uri, 1)
	}
	return printJSON(doc)
}

func runVerify(cctx *cli.Context) error {
	path := cctx.Args().First()
	if path == "" {
		return cli.Exit("a file is required", 1)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s is not a JSON object: %w", path, err)
	}

	a, err := openApp(cctx)
	if err != nil {
		return err
	}
	defer a.Close()

	creator, err := a.Deps().Signatures.Verify(cctx.Context, doc)
	if err != nil {
		return err
	}
	if creator == nil {
		return errors.New("signature could not be verified")
	}
	fmt.Println(a.Deps().Tags.AccountURI(creator))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
