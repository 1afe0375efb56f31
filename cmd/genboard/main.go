package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"genboard/internal/app"
	"genboard/internal/generator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "genboard",
		Short:         "Generator fuel dashboards for chat groups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")

	root.AddCommand(newServeCmd(&cfgPath))
	root.AddCommand(newListsCmd(&cfgPath))
	root.AddCommand(newRenderCmd(&cfgPath))
	root.AddCommand(newNormalizeCmd(&cfgPath))
	return root
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			a, err := app.New(*cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(context.Background()); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return fmt.Errorf("start: %w", err)
			}

			reason := app.StopAppStop
			select {
			case sig := <-sigs:
				reason = app.StopSIGINT
				if sig == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
			case <-a.Done():
				reason = app.StopFatalError
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			stopErr := a.Stop(ctx, reason)
			return errors.Join(a.Err(), stopErr)
		},
	}
}

func newListsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Print stored list names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := app.OpenOffline(*cfgPath)
			if err != nil {
				return err
			}
			defer o.Close()

			names, err := o.Gens.ListNames(cmd.Context())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no lists")
				return nil
			}
			for _, n := range names {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newRenderCmd(cfgPath *string) *cobra.Command {
	var asHTML bool
	c := &cobra.Command{
		Use:   "render <list>",
		Short: "Print a list's dashboard as it would be posted now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := app.OpenOffline(*cfgPath)
			if err != nil {
				return err
			}
			defer o.Close()

			list, err := o.Gens.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p := generator.Render(args[0], list, time.Now(), o.Render)
			out := p.Text()
			if asHTML {
				out = p.HTML()
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	c.Flags().BoolVar(&asHTML, "html", false, "print the HTML sent to the chat")
	return c
}

func newNormalizeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Load every list so legacy documents are rewritten in the current schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := app.OpenOffline(*cfgPath)
			if err != nil {
				return err
			}
			defer o.Close()

			names, err := o.Gens.ListNames(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				l, err := o.Gens.Load(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d generators (schema %d)\n", name, len(l.Items), l.Schema)
			}
			return nil
		},
	}
}
