package main

import (
	"context"
	"fmt"
	"strings"

	"grocketmq/message"

	"github.com/spf13/cobra"
)

func (a *app) invokeCmd() *cobra.Command {
	var (
		code   uint8
		ext    []string
		body   string
		remark string
		oneway bool
	)
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Send one remoting command to the broker and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := message.NewCommand(code)
			for _, kv := range ext {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid --ext %q, want key=value", kv)
				}
				req.AddProperty(k, v)
			}
			if remark != "" {
				req.SetRemark(remark)
			}
			if body != "" {
				req.SetBody([]byte(body))
			}

			cli, err := a.newClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*a.cfg.RequestTimeout)
			defer cancel()

			out := cmd.OutOrStdout()
			if oneway {
				if err := cli.InvokeOneway(ctx, req); err != nil {
					return err
				}
				fmt.Fprintf(out, "sent opaque=%d\n", req.Opaque())
				return nil
			}

			resp, err := cli.Invoke(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "code=%d opaque=%d flag=%d language=%d\n",
				resp.Code(), resp.Opaque(), resp.Flag(), resp.Language())
			if resp.Remark() != "" {
				fmt.Fprintf(out, "remark: %s\n", resp.Remark())
			}
			for k, v := range resp.Properties() {
				fmt.Fprintf(out, "ext: %s=%s\n", k, v)
			}
			if len(resp.Body()) > 0 {
				fmt.Fprintf(out, "body: %s\n", resp.Body())
			}
			return nil
		},
	}
	cmd.Flags().Uint8Var(&code, "code", 0, "request code")
	cmd.Flags().StringArrayVar(&ext, "ext", nil, "ext field key=value (repeatable)")
	cmd.Flags().StringVar(&body, "body", "", "request body")
	cmd.Flags().StringVar(&remark, "remark", "", "request remark")
	cmd.Flags().BoolVar(&oneway, "oneway", false, "do not wait for a reply")
	return cmd
}
