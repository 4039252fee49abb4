package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "siterag"}

	root.AddCommand(serveCMD(), crawlCMD(), askCMD(), migrateCMD(), tokenCMD())
	_ = root.Execute()
}
