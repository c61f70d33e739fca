// Command tango-replaydump inspects and repackages replay files recorded
// by a round: a single cobra binary with one subcommand per inspection
// mode, mirroring tango-replaytool's subcommand set.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tangobattle/tango-core/replay"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var invert bool

	root := &cobra.Command{
		Use:   "tango-replaydump <path>",
		Short: "Inspect and repackage tango replay files",
	}
	root.PersistentFlags().BoolVar(&invert, "invert", false, "view the replay from the opponent's perspective")

	loadReplay := func(path string) (*replay.Replay, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open replay: %w", err)
		}
		defer f.Close()

		r, err := replay.Read(f)
		if err != nil {
			return nil, fmt.Errorf("decode replay: %w", err)
		}
		if invert {
			inverted := r.IntoRemote()
			r = &inverted
		}
		return r, nil
	}

	root.AddCommand(newMetadataCmd(loadReplay))
	root.AddCommand(newTextCmd(loadReplay))
	root.AddCommand(newWramCmd(loadReplay))
	root.AddCommand(newCopyCmd(loadReplay))

	return root
}

func newMetadataCmd(load func(string) (*replay.Replay, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <path>",
		Short: "Dump replay metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := load(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Metadata         string `json:"metadata"`
				LocalPlayerIndex uint8  `json:"local_player_index"`
				RawInputSize     uint8  `json:"raw_input_size"`
				NumInputs        int    `json:"num_inputs"`
				IsComplete       bool   `json:"is_complete"`
			}{
				Metadata:         string(r.Metadata),
				LocalPlayerIndex: r.LocalPlayerIndex,
				RawInputSize:     r.RawInputSize,
				NumInputs:        len(r.Inputs),
				IsComplete:       r.IsComplete,
			})
		},
	}
}

func newTextCmd(load func(string) (*replay.Replay, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "text <path>",
		Short: "Dump every input pair in a human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := load(args[0])
			if err != nil {
				return err
			}
			for _, ip := range r.Inputs {
				fmt.Printf("tick=%08x l=%04x %02x r=%04x %02x\n",
					ip.LocalTick, ip.P1Joyflags, ip.P1Packet, ip.P2Joyflags, ip.P2Packet)
			}
			return nil
		},
	}
}

func newWramCmd(load func(string) (*replay.Replay, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "wram <path>",
		Short: "Dump the replay's starting local emulator state to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := load(args[0])
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(r.LocalState)
			return err
		},
	}
}

func newCopyCmd(load func(string) (*replay.Replay, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <path> <output-path>",
		Short: "Re-encode a replay, optionally inverted, to a new file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := load(args[0])
			if err != nil {
				return err
			}

			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer out.Close()

			w, err := replay.NewWriter(out, r.Metadata, r.LocalPlayerIndex, r.RawInputSize, r.LocalState, r.RemoteState)
			if err != nil {
				return fmt.Errorf("new writer: %w", err)
			}
			for _, ip := range r.Inputs {
				if err := w.AddInput(ip); err != nil {
					return fmt.Errorf("write input: %w", err)
				}
			}
			return w.Finish()
		},
	}
}
