package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"strom_bft/privval"
)

// ShowValidatorCmd adds capabilities for showing the validator info.
// 共识中验证者的身份是公钥对应的 peer id
var ShowValidatorCmd = &cobra.Command{
	Use:     "show-validator",
	Aliases: []string{"show_validator"},
	Short:   "Show this node's validator info",
	RunE:    showValidator,
	PreRun:  deprecateSnakeCase,
}

func showValidator(cmd *cobra.Command, args []string) error {
	keyFilePath := config.PrivValidatorKeyFile()
	if !tmos.FileExists(keyFilePath) {
		return fmt.Errorf("private validator file %s does not exist", keyFilePath)
	}

	pv, err := privval.LoadFilePV(keyFilePath, config.PrivValidatorStateFile())
	if err != nil {
		return err
	}
	pubKey, err := pv.GetPubKey()
	if err != nil {
		return errors.Wrap(err, "can't get pubkey")
	}

	bz, err := tmjson.Marshal(pubKey)
	if err != nil {
		return errors.Wrap(err, "failed to marshal private validator pubkey")
	}
	fmt.Println(string(pv.GetPeerID()))
	fmt.Println(string(bz))
	return nil
}
