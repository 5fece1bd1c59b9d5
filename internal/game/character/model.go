// Package character defines the character domain model, template loading, and
// the runtime Data that combines base stats with active status effects.
package character

import (
	"time"
)

// Vec3 is a position or velocity in world space.
type Vec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Quat is a rotation quaternion.
type Quat struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
	W float64 `yaml:"w"`
}

// Customization holds the visual part indices chosen for a character.
type Customization struct {
	Gender         string `yaml:"gender"` // "female" | "male"
	Hair           int    `yaml:"hair"`
	BackAttachment int    `yaml:"back_attachment"`
	Head           int    `yaml:"head"`
	Eyebrows       int    `yaml:"eyebrows"`
	FacialHair     int    `yaml:"facial_hair"`
	Torso          int    `yaml:"torso"`
	ArmUpperRight  int    `yaml:"arm_upper_right"`
	ArmUpperLeft   int    `yaml:"arm_upper_left"`
	ArmLowerRight  int    `yaml:"arm_lower_right"`
	ArmLowerLeft   int    `yaml:"arm_lower_left"`
	HandRight      int    `yaml:"hand_right"`
	HandLeft       int    `yaml:"hand_left"`
	Hips           int    `yaml:"hips"`
	LegRight       int    `yaml:"leg_right"`
	LegLeft        int    `yaml:"leg_left"`
	SkinColor      int    `yaml:"skin_color"`
}

// Demeanor is an NPC's attitude towards the player.
type Demeanor string

const (
	DemeanorFriendly Demeanor = "friendly"
	DemeanorNeutral  Demeanor = "neutral"
	DemeanorHostile  Demeanor = "hostile"
)

// Routine is an NPC behaviour mode.
type Routine string

const (
	RoutineIdle      Routine = "idle"
	RoutineWandering Routine = "wandering"
	RoutineCombat    Routine = "combat"
)

// NPC holds the non-player component data of a character.
type NPC struct {
	Demeanor       Demeanor
	DefaultRoutine Routine
	CurrentRoutine Routine
	Destination    Vec3
	ShopKeeper     bool
	Shop           string // database reference, "<category>:<id>"
	Dialogue       string // asset reference
}

// Character is the component data of one character instance.
//
// ID is assigned by Build; Attributes and Skills hold base values keyed by stat name.
type Character struct {
	ID         string
	TemplateID string

	Name         string
	Prefab       string
	Invulnerable bool

	Position      Vec3
	Rotation      Quat
	Velocity      Vec3
	IsDead        bool
	CurrentTarget string

	Visual Customization
	NPC    *NPC

	Attributes map[string]int
	Skills     map[string]int

	CreatedAt time.Time
	UpdatedAt time.Time
}
