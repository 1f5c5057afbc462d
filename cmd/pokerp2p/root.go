package main

import (
	"context"
	"math/big"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pokerp2p/pokerp2p/config"
	"github.com/pokerp2p/pokerp2p/contract"
	"github.com/pokerp2p/pokerp2p/peer"
	"github.com/pokerp2p/pokerp2p/settle"
	"github.com/pokerp2p/pokerp2p/store"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pokerp2p",
		Short:         "Two player high-card poker over a payment channel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML configuration file")
	root.AddCommand(newClientCmd(), newServerCmd(), newSettleCmd())
	return root
}

type runtime struct {
	cfg    config.Config
	log    zerolog.Logger
	signer *contract.Signer
	table  *contract.EthTable
	games  *store.FileStore
}

func setup(ctx context.Context, endpoint, privKey string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	signer, err := contract.NewSigner(privKey)
	if err != nil {
		return nil, err
	}
	table, err := contract.Dial(ctx, cfg.Endpoint,
		common.HexToAddress(cfg.HeadsUpContract),
		common.HexToAddress(cfg.PokerContract),
		signer, cfg.GasLimit)
	if err != nil {
		return nil, err
	}
	games, err := store.NewFileStore(cfg.GameDir)
	if err != nil {
		return nil, err
	}
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	return &runtime{cfg: cfg, log: log, signer: signer, table: table, games: games}, nil
}

func newClientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client <host:port> <ledger endpoint> <private key>",
		Short: "Connect to a waiting opponent and join their table",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, args[1], args[2])
			if err != nil {
				return err
			}
			conn, err := net.Dial("tcp", args[0])
			if err != nil {
				return errors.Wrapf(err, "dial %s", args[0])
			}
			defer conn.Close()
			pterm.Info.Printfln("connected to %s as %s", args[0], rt.signer.Address().Hex())

			player := peer.NewPlayer(peer.Config{
				Signer:    rt.signer,
				Table:     rt.table,
				Store:     rt.games,
				Operator:  peer.ConsoleOperator{},
				Log:       rt.log,
				Initiator: true,
			})
			return player.Run(ctx, conn)
		},
	}
}

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server <port> <ledger endpoint> <private key> <buy-in> [duration] [join_duration] [dispute_duration]",
		Short: "Wait for an opponent and offer a table",
		Args:  cobra.RangeArgs(4, 7),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, args[1], args[2])
			if err != nil {
				return err
			}

			buyIn, ok := new(big.Int).SetString(args[3], 10)
			if !ok || buyIn.Sign() <= 0 {
				return errors.Errorf("unusable buy-in %q", args[3])
			}
			terms := contract.Terms{
				BuyIn:           buyIn,
				Duration:        rt.cfg.Duration,
				JoinDuration:    rt.cfg.JoinDuration,
				DisputeDuration: rt.cfg.DisputeDuration,
			}
			durations := []*uint64{&terms.Duration, &terms.JoinDuration, &terms.DisputeDuration}
			for i, arg := range args[4:] {
				v, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return errors.Wrapf(err, "duration argument %q", arg)
				}
				*durations[i] = v
			}

			ln, err := net.Listen("tcp", ":"+args[0])
			if err != nil {
				return errors.Wrapf(err, "listen on port %s", args[0])
			}
			defer ln.Close()
			pterm.Info.Printfln("waiting for an opponent on port %s as %s", args[0], rt.signer.Address().Hex())

			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			defer conn.Close()
			pterm.Info.Printfln("connection from %s", conn.RemoteAddr())

			player := peer.NewPlayer(peer.Config{
				Signer:   rt.signer,
				Table:    rt.table,
				Store:    rt.games,
				Operator: peer.ConsoleOperator{},
				Log:      rt.log,
				Terms:    terms,
			})
			return player.Run(ctx, conn)
		},
	}
}

func newSettleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle <backup filename> <ledger endpoint> <private key>",
		Short: "Settle a table from its backup and claim the funds",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, args[1], args[2])
			if err != nil {
				return err
			}

			sessionHex := strings.TrimSuffix(filepath.Base(args[0]), ".pkr")
			rec, err := rt.games.Load(sessionHex)
			if err != nil {
				return err
			}

			monitor := &settle.Monitor{
				Table:  rt.table,
				Signer: rt.signer,
				Log:    rt.log,
				Poll:   rt.cfg.Poll(),
			}
			if err := monitor.Run(ctx, rec); err != nil {
				if errors.Is(err, settle.ErrResumePlay) {
					pterm.Warning.Println("the opponent disputed with a live hand; reconnect and finish it")
				}
				return err
			}
			pterm.Success.Println("table settled, removing backup")
			return rt.games.Delete(sessionHex)
		},
	}
}
