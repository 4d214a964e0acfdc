package world

import "sort"

// PartClass is the type of a part in a rig
type PartClass string

const (
	ClassBasePart PartClass = "BasePart"
	ClassPart     PartClass = "Part"
	ClassMeshPart PartClass = "MeshPart"
	ClassHumanoid PartClass = "Humanoid"
	ClassModel    PartClass = "Model"
)

var superclass = map[PartClass]PartClass{
	ClassPart:     ClassBasePart,
	ClassMeshPart: ClassBasePart,
}

// IsA reports whether c is other or inherits from it
func (c PartClass) IsA(other PartClass) bool {
	for c != "" {
		if c == other {
			return true
		}
		c = superclass[c]
	}
	return false
}

// Part is a named child of a rig
type Part struct {
	Name  string    `json:"name"`
	Class PartClass `json:"class"`
}

// Schema maps required part names to the class each must be
type Schema map[string]PartClass

// CharacterSchema is the shape a player character must have to be usable
var CharacterSchema = Schema{
	"Humanoid":         ClassHumanoid,
	"HumanoidRootPart": ClassBasePart,
	"Head":             ClassBasePart,
}

// Missing returns the required part names absent or of the wrong class, sorted
func (s Schema) Missing(parts map[string]PartClass) []string {
	var missing []string
	for name, want := range s {
		got, ok := parts[name]
		if !ok || !got.IsA(want) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// SatisfiedBy reports whether every required part is present with the right class
func (s Schema) SatisfiedBy(parts map[string]PartClass) bool {
	return len(s.Missing(parts)) == 0
}

// FullCharacter returns a complete set of character parts
func FullCharacter() []Part {
	return []Part{
		{Name: "Humanoid", Class: ClassHumanoid},
		{Name: "HumanoidRootPart", Class: ClassPart},
		{Name: "Head", Class: ClassMeshPart},
		{Name: "Torso", Class: ClassMeshPart},
	}
}
