package subcmd

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openimage/osbuildctl/kernel/model"
	"github.com/openimage/osbuildctl/kernel/refstore"
	"github.com/openimage/osbuildctl/kernel/store"
)

func init() {
	RootCmd.AddCommand(NewBootCommand())
}

type BootCommand struct {
	Persist bool
}

func NewBootCommand() *cobra.Command {
	bootCmd := &BootCommand{}

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot the built image in a virtual machine",
		RunE:  bootCmd.run,
	}

	cmd.Flags().BoolVar(&bootCmd.Persist, "persist", false, "keep changes made inside the VM on the image")

	return cmd
}

func (b *BootCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	state := store.NewFileStore(cfg.BuildDir).Load()
	image, ok := state.Result(model.StateImage)
	if !ok || image.ImageName == "" {
		return errors.Wrap(model.ErrConfiguration, "no image built yet, run the image target first")
	}

	dir, err := refstore.New(cfg.StoreDir).ResolveRef(image.OutputID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, image.ImageName)

	qemuArgs := []string{
		"-m", "2048",
		"-accel", "kvm:hvf:tcg",
		"-drive", "file=" + path + ",format=qcow2",
	}
	if !b.Persist {
		qemuArgs = append(qemuArgs, "-snapshot")
	}

	logrus.Infof("booting %s", path)
	vm := exec.CommandContext(cmd.Context(), "qemu-system-"+cfg.Arch, qemuArgs...)
	vm.Stdin = os.Stdin
	vm.Stdout = os.Stdout
	vm.Stderr = os.Stderr
	return vm.Run()
}
