package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"

	"strom_bft/privval"
)

// GenValidatorCmd 生成共识验证者的公私钥对, 只打印不保存
var GenValidatorCmd = &cobra.Command{
	Use:     "gen-validator",
	Aliases: []string{"gen_validator"},
	Short:   "Generate new validator keypair",
	PreRun:  deprecateSnakeCase,
	RunE:    genValidator,
}

func genValidator(cmd *cobra.Command, args []string) error {
	pv := privval.GenFilePV("", "")
	jsbz, err := tmjson.Marshal(pv)
	if err != nil {
		return err
	}
	fmt.Printf(`%v
`, string(jsbz))
	return nil
}
