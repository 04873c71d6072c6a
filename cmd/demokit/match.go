package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kasava-AI/demokit-sub003/pattern"
)

type matchResult struct {
	Kind    string         `json:"kind"`
	Pattern string         `json:"pattern"`
	Key     string         `json:"key"`
	Matched bool           `json:"matched"`
	Params  pattern.Params `json:"params,omitempty"`
}

func newMatchCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "match PATTERN IDENTIFIER",
		Short: "Match an identifier against a fixture pattern",
		Long: `Compiles PATTERN and matches IDENTIFIER against it, printing the result as JSON.
For --kind tuple both arguments are JSON arrays, e.g. '["users", ":id"]' '["users", 7]'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := pattern.ParseKind(kind)
			if err != nil {
				return err
			}
			res, err := runMatch(k, args[0], args[1])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "path", "pattern kind: path, tuple or procedure")
	return cmd
}

func runMatch(kind pattern.Kind, rawPattern, rawID string) (matchResult, error) {
	var src, id any = rawPattern, rawID
	if kind == pattern.KindTuple {
		var err error
		if src, err = decodeTuple(rawPattern); err != nil {
			return matchResult{}, fmt.Errorf("pattern: %w", err)
		}
		if id, err = decodeTuple(rawID); err != nil {
			return matchResult{}, fmt.Errorf("identifier: %w", err)
		}
	}

	p, err := pattern.Compile(kind, src)
	if err != nil {
		return matchResult{}, err
	}
	key, err := pattern.CanonicalKey(kind, id)
	if err != nil {
		return matchResult{}, err
	}

	r := p.Match(id)
	return matchResult{
		Kind:    kind.String(),
		Pattern: p.String(),
		Key:     key,
		Matched: r.Matched,
		Params:  r.Params,
	}, nil
}

func decodeTuple(s string) ([]any, error) {
	var v []any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
