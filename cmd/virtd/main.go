// virtd - service virtualization server.
package main

import "github.com/virtserve/virtserve/pkg/cli"

func main() {
	cli.Execute()
}
