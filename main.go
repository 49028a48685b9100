package main

import "github.com/minvws/nl-covid19-coronacheck-dcc/cmd"

func main() {
	cmd.Execute()
}
