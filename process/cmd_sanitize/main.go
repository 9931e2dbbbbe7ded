package main

import (
	"github.com/joho/godotenv"

	"shepherd/process/sanitize"
)

func main() {
	_ = godotenv.Load()
	sanitize.Run()
}
