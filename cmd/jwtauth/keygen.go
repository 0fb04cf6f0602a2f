package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var (
		algName string
		dir     string
		name    string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key for an algorithm",
		Long: "Generate a signing key sized to the algorithm minimum. HS algorithms get a raw\n" +
			"secret; RS and EdDSA get a PKCS#8 private key plus <name>.pub with the public key.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			alg, err := jwt.ParseAlgorithm(algName)
			if err != nil {
				return err
			}
			desc, _ := jwt.Describe(alg)
			if name == "" {
				name = "jwt_" + strings.ToLower(string(alg))
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return err
			}

			written, err := writeKey(alg, desc.KeyType, filepath.Join(dir, name), force)
			if err != nil {
				return err
			}
			for _, p := range written {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&algName, "alg", "a", string(jwt.HS256), "algorithm")
	cmd.Flags().StringVarP(&dir, "dir", "d", "keys", "output directory")
	cmd.Flags().StringVarP(&name, "name", "n", "", "key identifier, default jwt_<alg>")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

func writeKey(alg jwt.Algorithm, kt jwt.KeyType, path string, force bool) ([]string, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	write := func(p string, data []byte, mode os.FileMode) error {
		f, err := os.OpenFile(p, flags, mode)
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	if kt == jwt.Symmetric {
		secret, err := jwt.GenerateSecret(alg)
		if err != nil {
			return nil, err
		}
		return []string{path}, write(path, secret, 0o600)
	}

	privPEM, err := jwt.GeneratePrivateKeyPEM(alg)
	if err != nil {
		return nil, err
	}
	priv, err := jwt.NewPrivateKey(alg, privPEM)
	if err != nil {
		return nil, err
	}
	pubPEM, err := jwt.PublicKeyPEM(priv)
	if err != nil {
		return nil, err
	}
	if err := write(path, privPEM, 0o600); err != nil {
		return nil, err
	}
	if err := write(path+".pub", pubPEM, 0o644); err != nil {
		return nil, err
	}
	return []string{path, path + ".pub"}, nil
}
