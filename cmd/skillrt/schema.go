package main

import (
	"fmt"

	"github.com/jingkaihe/skillrt/pkg/registry"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of skill documents",
	Long: `Print the JSON schema every skill document is validated against. Editors
that understand JSON schema can use it to validate skill files.`,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(string(registry.SchemaJSON()))
	},
}
