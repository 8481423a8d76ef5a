// Kosten - multi-cloud resource sync and cost allocation engine.
package main

import (
	_ "github.com/finopskit/kosten/connector/awscloud"
	_ "github.com/finopskit/kosten/connector/static"
)

func main() {
	Execute()
}
