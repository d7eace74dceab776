package theme

// builtin palettes, so the binary runs without palette files
var builtin = map[string]*Palette{
	"plasma": {
		Name: "plasma",
		Colors: []RGB{
			{13, 8, 135}, {75, 3, 161}, {125, 3, 168}, {168, 34, 150},
			{203, 70, 121}, {229, 107, 93}, {248, 148, 65}, {253, 195, 40},
			{240, 249, 33},
		},
	},
	"mono": {
		Name: "mono",
		Colors: []RGB{
			{16, 16, 16}, {48, 48, 48}, {96, 96, 96}, {160, 160, 160},
			{200, 200, 200}, {224, 224, 224}, {240, 240, 240}, {255, 255, 255},
		},
	},
}

// Names lists the built-in palettes.
func Names() []string {
	return []string{"plasma", "mono"}
}
