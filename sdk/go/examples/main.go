// Command examples wraps native currency into WETH through a running openutrd.
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"OpenUTR/internal/adapters"
	"OpenUTR/internal/chain"
	"OpenUTR/internal/devnet"
	"OpenUTR/internal/router"
	"OpenUTR/internal/task"
	"OpenUTR/sdk/go/openutr"
)

func main() {
	baseURL := os.Getenv("OPENUTR_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	client, err := openutr.NewClient(baseURL, nil)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if user := os.Getenv("OPENUTR_USER"); user != "" {
		token, err := client.Authenticate(ctx, user, os.Getenv("OPENUTR_PASSWORD"))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("authenticated, acting as %s\n", token.Account)
	}

	weth, err := client.ContractAddress(ctx, "weth")
	if err != nil {
		log.Fatal(err)
	}
	adapter, err := client.ContractAddress(ctx, "wethAdapter")
	if err != nil {
		log.Fatal(err)
	}
	// Genesis accounts derive their address from the name.
	recipient := devnet.AddressOf("other")

	amount := big.NewInt(1_000)
	batch, err := client.SubmitBatch(ctx, openutr.BatchSubmission{
		Caller: "owner",
		Value:  amount,
		Outputs: []openutr.Output{{
			EIP: router.AssetERC20, Token: weth, MinAmount: amount, Recipient: recipient,
		}},
		Actions: []openutr.Action{{
			Inputs:  []openutr.Input{{Mode: router.ModeCallValue, EIP: router.AssetNative, Amount: amount}},
			Target:  adapter,
			Payload: chain.MustPack(adapters.WrapABI, "deposit", recipient),
		}},
		Metadata: map[string]string{"source": "sdk-example"},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("submitted batch %s (%s)\n", batch.ID, batch.Status)

	done, err := client.WaitBatch(ctx, batch.ID, 250*time.Millisecond)
	if err != nil {
		log.Fatal(err)
	}
	if done.Status != task.StatusSucceeded {
		log.Fatalf("batch %s failed: %s %s", done.ID, done.ErrorCode, done.LastError)
	}
	for _, delta := range done.Result.Outputs {
		fmt.Printf("%s: %s -> %s\n", delta.Output.Token.Hex(), delta.Before, delta.After)
	}
}
