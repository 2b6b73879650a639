package common

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/markus-wa/quickhull-go/v2"
	"github.com/oklog/ulid/v2"
)

// Bombsite identifies a bomb target.
type Bombsite rune

// Bombsite identifiers.
const (
	BombsiteUnknown Bombsite = 0
	BombsiteA       Bombsite = 'A'
	BombsiteB       Bombsite = 'B'
)

// Zone is an axis aligned box, e.g. a trigger or a hostage rescue area.
type Zone struct {
	EntityID int
	Min      r3.Vector
	Max      r3.Vector
}

// Contains returns true if v lies inside the zone, borders included.
func (z Zone) Contains(v r3.Vector) bool {
	return v.X >= z.Min.X && v.X <= z.Max.X &&
		v.Y >= z.Min.Y && v.Y <= z.Max.Y &&
		v.Z >= z.Min.Z && v.Z <= z.Max.Z
}

// BombsiteInfo is a resolved bomb target.
type BombsiteInfo struct {
	Site   Bombsite
	Center r3.Vector
	Zone
}

// GrenadeProjectile is a grenade thrown intentionally by a player.
// Equipment and projectile are separate entities.
type GrenadeProjectile struct {
	EntityID   int
	UniqueID   ulid.ULID
	Weapon     EquipmentElement
	Thrower    *Player
	Position   r3.Vector
	Trajectory []r3.Vector // List of all known locations of the grenade up to the current point
}

// NewGrenadeProjectile returns a projectile with a fresh UniqueID.
func NewGrenadeProjectile(entityID int) *GrenadeProjectile {
	return &GrenadeProjectile{
		EntityID: entityID,
		UniqueID: ulid.Make(),
	}
}

// Fire is a single fire of an inferno.
type Fire struct {
	r3.Vector

	IsBurning bool
}

// Inferno is a list of Fires with helper functions.
// Also contains already extinguished fires.
type Inferno struct {
	EntityID int
	UniqueID ulid.ULID
	Thrower  *Player
	Fires    []Fire
}

// NewInferno returns an inferno without fires and a fresh UniqueID.
func NewInferno(entityID int) *Inferno {
	return &Inferno{
		EntityID: entityID,
		UniqueID: ulid.Make(),
	}
}

// Active returns the fires that are still burning.
func (inf *Inferno) Active() []Fire {
	var res []Fire
	for _, f := range inf.Fires {
		if f.IsBurning {
			res = append(res, f)
		}
	}
	return res
}

// ConvexHull2D returns the corner points of the 2D convex hull of the burning fires.
// Fewer than three fires are returned as is.
func (inf *Inferno) ConvexHull2D() []r2.Point {
	active := inf.Active()

	pointCloud := make([]r3.Vector, len(active))
	for i, f := range active {
		pointCloud[i] = r3.Vector{X: f.X, Y: f.Y}
	}

	if len(pointCloud) < 3 {
		return toR2Points(pointCloud)
	}

	hull := new(quickhull.QuickHull).ConvexHull(pointCloud, true, true, 0)

	return toR2Points(hull.Vertices)
}

func toR2Points(vertices []r3.Vector) []r2.Point {
	res := make([]r2.Point, len(vertices))
	for i, v := range vertices {
		res[i] = r2.Point{X: v.X, Y: v.Y}
	}
	return res
}
