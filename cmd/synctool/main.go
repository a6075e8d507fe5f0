package main

import (
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/trigg3rX/triggerx-mirror-sync/cli/actions"
)

func main() {
	kindFlag := cli.StringFlag{
		Name:  "kind",
		Usage: "payload kind: full, per_quorum or quorum_threshold",
		Value: "full",
	}

	app := cli.NewApp()
	app.Name = "synctool"
	app.Usage = "Mirror sync payload and envelope tooling"

	app.Commands = []cli.Command{
		{
			Name:   "encode",
			Usage:  "ABI-encode a payload described in YAML or JSON",
			Action: actions.Encode,
			Flags: []cli.Flag{
				kindFlag,
				cli.StringFlag{Name: "file", Usage: "payload description file, - for stdin"},
			},
		},
		{
			Name:   "decode",
			Usage:  "Decode a hex payload and print it as JSON",
			Action: actions.Decode,
			Flags: []cli.Flag{
				kindFlag,
				cli.StringFlag{Name: "payload", Usage: "hex payload"},
			},
		},
		{
			Name:   "keygen",
			Usage:  "Generate a signing key",
			Action: actions.Keygen,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "keystore", Usage: "import the key into this keystore directory"},
				cli.StringFlag{Name: "password", Usage: "keystore password", EnvVar: "SYNCTOOL_KEYSTORE_PASSWORD"},
			},
		},
		{
			Name:   "sign",
			Usage:  "Wrap a payload in a signed envelope, optionally submitting it",
			Action: actions.Sign,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "keys", Usage: "comma separated hex private keys", EnvVar: "SYNC_SIGNER_KEYS"},
				cli.StringFlag{Name: "payload", Usage: "hex payload"},
				cli.StringFlag{Name: "event-id", Usage: "20-byte hex event id"},
				cli.Uint64Flag{Name: "block", Usage: "reference block", Value: 1},
				cli.StringFlag{Name: "url", Usage: "mirror base URL to submit to"},
			},
		},
		{
			Name:   "inspect",
			Usage:  "Print a mirror's current state",
			Action: actions.Inspect,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "url", Usage: "mirror base URL"},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
