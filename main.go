package main

import "github.com/Alijeyrad/clinicq_backend/cmd"

func main() {
	cmd.Execute()
}
