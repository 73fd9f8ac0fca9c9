package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli"

	cmdcommon "github.com/tollgate/tollgate/cmd/common"
	"github.com/tollgate/tollgate/pkg/secrets"
)

func tokenGenerate(ctx *cli.Context) error {
	token, err := secrets.GenerateToken()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "token", "generate", err)
		return nil
	}
	if err := secrets.Open(configDir()).SetToken(token); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "token", "store", err)
		return nil
	}
	fmt.Println(token)
	return nil
}

func tokenSet(ctx *cli.Context) error {
	token := ctx.Args().First()
	if token == "" {
		cmdcommon.PrintRuntimeErr(ctx, "token", "set", errMissingToken)
		return nil
	}
	if err := secrets.Open(configDir()).SetToken(token); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "token", "store", err)
		return nil
	}
	fmt.Println("token stored")
	return nil
}

func tokenShow(ctx *cli.Context) error {
	token, err := secrets.Open(configDir()).Token()
	if errors.Is(err, secrets.ErrNoToken) {
		fmt.Println("tollgate: no token stored")
		return nil
	}
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "token", "fetch", err)
		return nil
	}
	fmt.Println(token)
	return nil
}

func tokenDelete(ctx *cli.Context) error {
	if err := secrets.Open(configDir()).DeleteToken(); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "token", "delete", err)
		return nil
	}
	fmt.Println("token deleted")
	return nil
}
