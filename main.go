package main

import "github.com/ValentinKolb/dVol/cmd"

func main() {
	cmd.Execute()
}
