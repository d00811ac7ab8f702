// Command adbauto drives Android devices over adb.
package main

import "github.com/devicelab-dev/adbauto/pkg/cli"

func main() {
	cli.Execute()
}
