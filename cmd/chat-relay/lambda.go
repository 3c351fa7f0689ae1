package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve API Gateway proxy events through the same pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, h, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		lambda.Start(h.HandleAPIGateway)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}
