package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/achat/internal/config"
	"github.com/matheus3301/achat/internal/daemon"
	"github.com/matheus3301/achat/internal/lock"
	"github.com/matheus3301/achat/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if owner, ok := lock.Holder(session.Dir(sessionName)); ok {
		fmt.Fprintf(os.Stderr, "error: session %q is already served by pid %d since %s\n",
			sessionName, owner.PID, owner.Since.Local().Format(time.DateTime))
		os.Exit(1)
	}

	cfg, err := config.LoadWithEnv(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, Config: cfg}),
	)

	app.Run()
}
