package console

import (
	"strconv"

	"github.com/pitline/pitline/schema"
)

type rgb struct {
	r int
	g int
	b int
}

type tuiTheme struct {
	Name      schema.ThemeName
	HeaderFG  rgb
	UserFG    rgb
	SystemFG  rgb
	DividerFG rgb
	PromptFG  rgb
	SpinnerFG rgb
	ErrorFG   rgb
	StatusBG  rgb
	StatusFG  rgb
	GainFG    rgb
	LossFG    rgb
}

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiItalic = "\x1b[3m"
)

var tuiThemes = map[schema.ThemeName]tuiTheme{
	"outrun": {
		Name:      "outrun",
		HeaderFG:  rgb{r: 0, g: 229, b: 255},
		UserFG:    rgb{r: 255, g: 91, b: 189},
		SystemFG:  rgb{r: 154, g: 163, b: 178},
		DividerFG: rgb{r: 60, g: 79, b: 184},
		PromptFG:  rgb{r: 255, g: 255, b: 255},
		SpinnerFG: rgb{r: 110, g: 136, b: 255},
		ErrorFG:   rgb{r: 255, g: 107, b: 107},
		StatusBG:  rgb{r: 32, g: 8, b: 56},
		StatusFG:  rgb{r: 240, g: 241, b: 255},
		GainFG:    rgb{r: 80, g: 250, b: 123},
		LossFG:    rgb{r: 255, g: 107, b: 107},
	},
	"gruvbox": {
		Name:      "gruvbox",
		HeaderFG:  rgb{r: 250, g: 189, b: 47},
		UserFG:    rgb{r: 211, g: 134, b: 155},
		SystemFG:  rgb{r: 146, g: 131, b: 116},
		DividerFG: rgb{r: 102, g: 92, b: 84},
		PromptFG:  rgb{r: 255, g: 255, b: 255},
		SpinnerFG: rgb{r: 131, g: 165, b: 152},
		ErrorFG:   rgb{r: 251, g: 73, b: 52},
		StatusBG:  rgb{r: 60, g: 56, b: 54},
		StatusFG:  rgb{r: 235, g: 219, b: 178},
		GainFG:    rgb{r: 184, g: 187, b: 38},
		LossFG:    rgb{r: 251, g: 73, b: 52},
	},
	"tokyo-midnight": {
		Name:      "tokyo-midnight",
		HeaderFG:  rgb{r: 122, g: 162, b: 247},
		UserFG:    rgb{r: 187, g: 154, b: 247},
		SystemFG:  rgb{r: 127, g: 133, b: 163},
		DividerFG: rgb{r: 59, g: 79, b: 159},
		PromptFG:  rgb{r: 255, g: 255, b: 255},
		SpinnerFG: rgb{r: 122, g: 162, b: 247},
		ErrorFG:   rgb{r: 247, g: 118, b: 142},
		StatusBG:  rgb{r: 26, g: 27, b: 38},
		StatusFG:  rgb{r: 192, g: 202, b: 245},
		GainFG:    rgb{r: 158, g: 206, b: 106},
		LossFG:    rgb{r: 247, g: 118, b: 142},
	},
}

// ThemeNames lists the selectable themes in a stable order for /theme.
func ThemeNames() []schema.ThemeName {
	return []schema.ThemeName{"outrun", "gruvbox", "tokyo-midnight"}
}

// KnownTheme reports whether name is a selectable theme.
func KnownTheme(name schema.ThemeName) bool {
	_, ok := tuiThemes[name]
	return ok
}

func themeForName(name schema.ThemeName) tuiTheme {
	if name == "" {
		name = schema.DefaultTheme
	}
	if theme, ok := tuiThemes[name]; ok {
		return theme
	}
	return tuiThemes[schema.DefaultTheme]
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}
