package domain

import (
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// MaterialID identifies a material in the catalog.
type MaterialID uint16

// MaterialFlags is a packed set of material properties.
type MaterialFlags uint32

const (
	// FlagSolid marks materials that bear load.
	FlagSolid MaterialFlags = 1 << iota
	// FlagLiquid marks materials that flow.
	FlagLiquid
	// FlagGas marks materials that are gaseous.
	FlagGas
	// FlagPorous marks materials that hold water.
	FlagPorous
	// FlagErodible marks materials that surface processes can remove.
	FlagErodible
	// FlagMolten marks materials above their melting point.
	FlagMolten
)

// Has reports whether every flag in mask is set.
func (f MaterialFlags) Has(mask MaterialFlags) bool {
	return f&mask == mask
}

// Material is an immutable material record. Two materials are equal when all
// fields are equal, so Material is safe to use as a map key.
type Material struct {
	ID       MaterialID    `json:"id" yaml:"id"`
	Density  float32       `json:"density" yaml:"density"`
	Hardness float32       `json:"hardness" yaml:"hardness"`
	Flags    MaterialFlags `json:"flags" yaml:"flags"`
}

// Well-known materials. The records are unexported so no caller can change
// them; the accessors below return copies.
var (
	air      = Material{ID: 0, Density: 1.225, Hardness: 0, Flags: FlagGas}
	water    = Material{ID: 1, Density: 1000, Hardness: 0, Flags: FlagLiquid}
	rock     = Material{ID: 2, Density: 2700, Hardness: 6, Flags: FlagSolid}
	sand     = Material{ID: 3, Density: 1600, Hardness: 1, Flags: FlagSolid | FlagPorous | FlagErodible}
	soil     = Material{ID: 4, Density: 1300, Hardness: 1.5, Flags: FlagSolid | FlagPorous | FlagErodible}
	sediment = Material{ID: 5, Density: 1900, Hardness: 2, Flags: FlagSolid | FlagPorous | FlagErodible}
	granite  = Material{ID: 6, Density: 2750, Hardness: 7, Flags: FlagSolid}
	basalt   = Material{ID: 7, Density: 3000, Hardness: 6.5, Flags: FlagSolid}
	ice      = Material{ID: 8, Density: 917, Hardness: 1.5, Flags: FlagSolid}
	magma    = Material{ID: 9, Density: 2600, Hardness: 0, Flags: FlagLiquid | FlagMolten}
)

// Air is the default fill of an empty world.
func Air() Material { return air }

// Water is fresh or salt water.
func Water() Material { return water }

// Ocean is the material used for seawater.
func Ocean() Material { return water }

// Rock is generic bedrock.
func Rock() Material { return rock }

// Sand is loose, erodible grains.
func Sand() Material { return sand }

// Soil is erodible topsoil.
func Soil() Material { return soil }

// Sediment is what water deposits.
func Sediment() Material { return sediment }

// Granite is continental bedrock.
func Granite() Material { return granite }

// Basalt is oceanic bedrock.
func Basalt() Material { return basalt }

// Ice is frozen water.
func Ice() Material { return ice }

// Magma is molten rock.
func Magma() Material { return magma }

var catalog = map[string]Material{
	"air":      air,
	"water":    water,
	"ocean":    water,
	"rock":     rock,
	"sand":     sand,
	"soil":     soil,
	"sediment": sediment,
	"granite":  granite,
	"basalt":   basalt,
	"ice":      ice,
	"magma":    magma,
}

// MaterialByName resolves a catalog material by its case-insensitive name.
func MaterialByName(name string) (Material, error) {
	m, ok := catalog[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Material{}, zerr.With(zerr.Wrap(ErrUnknownMaterial, name), "material", name)
	}
	return m, nil
}

// MaterialName returns the catalog name of m, or "" for custom materials.
func MaterialName(m Material) string {
	switch m {
	case air:
		return "air"
	case water:
		return "water"
	case rock:
		return "rock"
	case sand:
		return "sand"
	case soil:
		return "soil"
	case sediment:
		return "sediment"
	case granite:
		return "granite"
	case basalt:
		return "basalt"
	case ice:
		return "ice"
	case magma:
		return "magma"
	default:
		return ""
	}
}

// IsSolid reports whether the material bears load.
func (m Material) IsSolid() bool {
	return m.Flags.Has(FlagSolid)
}

// String returns the catalog name or the numeric ID.
func (m Material) String() string {
	if name := MaterialName(m); name != "" {
		return name
	}
	return "material#" + strconv.Itoa(int(m.ID))
}
