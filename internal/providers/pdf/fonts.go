package pdf

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core/entity"
	"github.com/johnfercher/maroto/v2/pkg/repository"
)

// fontFamily covers Greek; the cp1252 core fonts do not.
const fontFamily = "dejavu"

var (
	//go:embed fonts/DejaVuSans.ttf
	dejavuRegular []byte
	//go:embed fonts/DejaVuSans-Bold.ttf
	dejavuBold []byte
)

// Italic styles reuse the upright faces.
var loadFonts = sync.OnceValues(func() ([]*entity.CustomFont, error) {
	fonts, err := repository.New().
		AddUTF8FontFromBytes(fontFamily, fontstyle.Normal, dejavuRegular).
		AddUTF8FontFromBytes(fontFamily, fontstyle.Italic, dejavuRegular).
		AddUTF8FontFromBytes(fontFamily, fontstyle.Bold, dejavuBold).
		AddUTF8FontFromBytes(fontFamily, fontstyle.BoldItalic, dejavuBold).
		Load()
	if err != nil {
		return nil, fmt.Errorf("load pdf fonts: %w", err)
	}
	return fonts, nil
})
