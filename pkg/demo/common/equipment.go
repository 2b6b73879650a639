package common

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// EquipmentClass is the type for the various EqClassXYZ constants.
type EquipmentClass int

// EquipmentClass constants give information about the type of an equipment (SMG, Rifle, Grenade etc.).
//
// Note: EquipmentElement/100 + 1 = EquipmentClass, so EqUnknown falls into EqClassPistols.
const (
	EqClassUnknown   EquipmentClass = 0
	EqClassPistols   EquipmentClass = 1
	EqClassSMG       EquipmentClass = 2
	EqClassHeavy     EquipmentClass = 3
	EqClassRifle     EquipmentClass = 4
	EqClassEquipment EquipmentClass = 5
	EqClassGrenade   EquipmentClass = 6
)

// EquipmentElement is the type for the various EqXYZ constants.
type EquipmentElement int

// EquipmentElement constants give information about what weapon a player has equipped.
const (
	EqUnknown EquipmentElement = 0

	// Pistols

	EqP2000        EquipmentElement = 1
	EqGlock        EquipmentElement = 2
	EqP250         EquipmentElement = 3
	EqDeagle       EquipmentElement = 4
	EqFiveSeven    EquipmentElement = 5
	EqDualBerettas EquipmentElement = 6
	EqTec9         EquipmentElement = 7
	EqCZ           EquipmentElement = 8
	EqUSP          EquipmentElement = 9
	EqRevolver     EquipmentElement = 10

	// SMGs

	EqMP7   EquipmentElement = 101
	EqMP9   EquipmentElement = 102
	EqBizon EquipmentElement = 103
	EqMac10 EquipmentElement = 104
	EqUMP   EquipmentElement = 105
	EqP90   EquipmentElement = 106
	EqMP5   EquipmentElement = 107

	// Heavy

	EqSawedOff EquipmentElement = 201
	EqNova     EquipmentElement = 202
	EqMag7     EquipmentElement = 203 // You should consider using EqSwag7 instead
	EqSwag7    EquipmentElement = 203
	EqXM1014   EquipmentElement = 204
	EqM249     EquipmentElement = 205
	EqNegev    EquipmentElement = 206

	// Rifles

	EqGalil  EquipmentElement = 301
	EqFamas  EquipmentElement = 302
	EqAK47   EquipmentElement = 303
	EqM4A4   EquipmentElement = 304
	EqM4A1   EquipmentElement = 305
	EqScout  EquipmentElement = 306
	EqSSG08  EquipmentElement = 306
	EqSG556  EquipmentElement = 307
	EqSG553  EquipmentElement = 307
	EqAUG    EquipmentElement = 308
	EqAWP    EquipmentElement = 309
	EqScar20 EquipmentElement = 310
	EqG3SG1  EquipmentElement = 311

	// Equipment

	EqZeus      EquipmentElement = 401
	EqKevlar    EquipmentElement = 402
	EqHelmet    EquipmentElement = 403
	EqBomb      EquipmentElement = 404
	EqKnife     EquipmentElement = 405
	EqDefuseKit EquipmentElement = 406
	EqWorld     EquipmentElement = 407

	// Grenades

	EqDecoy      EquipmentElement = 501
	EqMolotov    EquipmentElement = 502
	EqIncendiary EquipmentElement = 503
	EqFlash      EquipmentElement = 504
	EqSmoke      EquipmentElement = 505
	EqHE         EquipmentElement = 506
)

var eqNameToWeapon = map[string]EquipmentElement{
	"ak47":                   EqAK47,
	"aug":                    EqAUG,
	"awp":                    EqAWP,
	"bizon":                  EqBizon,
	"c4":                     EqBomb,
	"deagle":                 EqDeagle,
	"decoy":                  EqDecoy,
	"decoygrenade":           EqDecoy,
	"decoyprojectile":        EqDecoy,
	"elite":                  EqDualBerettas,
	"famas":                  EqFamas,
	"fiveseven":              EqFiveSeven,
	"flashbang":              EqFlash,
	"g3sg1":                  EqG3SG1,
	"galil":                  EqGalil,
	"galilar":                EqGalil,
	"glock":                  EqGlock,
	"hegrenade":              EqHE,
	"hkp2000":                EqP2000,
	"p2000":                  EqP2000,
	"incgrenade":             EqIncendiary,
	"incendiarygrenade":      EqIncendiary,
	"m249":                   EqM249,
	"m4a1":                   EqM4A4,
	"mac10":                  EqMac10,
	"mag7":                   EqSwag7,
	"molotov":                EqMolotov,
	"molotovgrenade":         EqMolotov,
	"molotovprojectile":      EqMolotov,
	"mp7":                    EqMP7,
	"mp5sd":                  EqMP5,
	"mp9":                    EqMP9,
	"negev":                  EqNegev,
	"nova":                   EqNova,
	"p250":                   EqP250,
	"p90":                    EqP90,
	"sawedoff":               EqSawedOff,
	"scar20":                 EqScar20,
	"sg556":                  EqSG556,
	"smokegrenade":           EqSmoke,
	"smokegrenadeprojectile": EqSmoke,
	"ssg08":                  EqSSG08,
	"taser":                  EqZeus,
	"tec9":                   EqTec9,
	"ump45":                  EqUMP,
	"xm1014":                 EqXM1014,
	"m4a1_silencer":          EqM4A1,
	"m4a1_silencer_off":      EqM4A1,
	"cz75a":                  EqCZ,
	"usp":                    EqUSP,
	"usp_silencer":           EqUSP,
	"usp_silencer_off":       EqUSP,
	"world":                  EqWorld,
	"inferno":                EqIncendiary,
	"revolver":               EqRevolver,
	"vest":                   EqKevlar,
	"vesthelm":               EqHelmet,
	"defuser":                EqDefuseKit,
}

var equipmentToName = map[EquipmentElement]string{
	EqAK47:         "AK-47",
	EqAUG:          "AUG",
	EqAWP:          "AWP",
	EqBizon:        "PP-Bizon",
	EqBomb:         "C4",
	EqDeagle:       "Desert Eagle",
	EqDecoy:        "Decoy Grenade",
	EqDualBerettas: "Dual Berettas",
	EqFamas:        "FAMAS",
	EqFiveSeven:    "Five-SeveN",
	EqFlash:        "Flashbang",
	EqG3SG1:        "G3SG1",
	EqGalil:        "Galil AR",
	EqGlock:        "Glock-18",
	EqHE:           "HE Grenade",
	EqP2000:        "P2000",
	EqIncendiary:   "Incendiary Grenade",
	EqM249:         "M249",
	EqM4A4:         "M4A4",
	EqMac10:        "MAC-10",
	EqSwag7:        "MAG-7",
	EqMolotov:      "Molotov",
	EqMP7:          "MP7",
	EqMP5:          "MP5-SD",
	EqMP9:          "MP9",
	EqNegev:        "Negev",
	EqNova:         "Nova",
	EqP250:         "P250",
	EqP90:          "P90",
	EqSawedOff:     "Sawed-Off",
	EqScar20:       "SCAR-20",
	EqSG553:        "SG 553",
	EqSmoke:        "Smoke Grenade",
	EqScout:        "SSG 08",
	EqZeus:         "Zeus x27",
	EqTec9:         "Tec-9",
	EqUMP:          "UMP-45",
	EqXM1014:       "XM1014",
	EqM4A1:         "M4A1",
	EqCZ:           "CZ75 Auto",
	EqUSP:          "USP-S",
	EqWorld:        "World",
	EqRevolver:     "R8 Revolver",
	EqKevlar:       "Kevlar Vest",
	EqHelmet:       "Kevlar + Helmet",
	EqDefuseKit:    "Defuse Kit",
	EqKnife:        "Knife",
	EqUnknown:      "UNKNOWN",
}

// String returns a human readable name for the equipment.
// E.g. 'AK-47', 'UMP-45', 'Smoke Grenade' etc.
func (e EquipmentElement) String() string {
	if name, ok := equipmentToName[e]; ok {
		return name
	}
	return equipmentToName[EqUnknown]
}

// Class returns the class of the equipment.
// E.g. pistol, smg, heavy etc.
func (e EquipmentElement) Class() EquipmentClass {
	const classDenominator = 100

	return EquipmentClass(int(e)/classDenominator + 1)
}

// MapEquipment creates an EquipmentElement from the name of the weapon / equipment.
// Returns EqUnknown if no mapping can be found.
func MapEquipment(eqName string) EquipmentElement {
	eqName = strings.TrimPrefix(strings.ToLower(eqName), "weapon_")

	if strings.Contains(eqName, "knife") || strings.Contains(eqName, "bayonet") {
		return EqKnife
	}

	if wep, ok := eqNameToWeapon[eqName]; ok {
		return wep
	}

	return EqUnknown
}

type modelMapping struct {
	fragment string
	weapon   EquipmentElement
}

// Weapons sharing a server class. The model name tells them apart.
// Fragments are matched in order, so longer ones come first.
var ambiguousWeapons = map[EquipmentElement][]modelMapping{
	EqUSP:      {{"_pist_223", EqUSP}, {"_pist_hkp2000", EqP2000}},
	EqP2000:    {{"_pist_223", EqUSP}, {"_pist_hkp2000", EqP2000}},
	EqM4A4:     {{"_rif_m4a1_s", EqM4A1}, {"_rif_m4a1", EqM4A4}},
	EqM4A1:     {{"_rif_m4a1_s", EqM4A1}, {"_rif_m4a1", EqM4A4}},
	EqP250:     {{"_pist_cz_75", EqCZ}, {"_pist_p250", EqP250}},
	EqCZ:       {{"_pist_cz_75", EqCZ}, {"_pist_p250", EqP250}},
	EqDeagle:   {{"_pist_deagle", EqDeagle}, {"_pist_revolver", EqRevolver}},
	EqRevolver: {{"_pist_deagle", EqDeagle}, {"_pist_revolver", EqRevolver}},
	EqMP7:      {{"_smg_mp7", EqMP7}, {"_smg_mp5sd", EqMP5}},
	EqMP5:      {{"_smg_mp7", EqMP7}, {"_smg_mp5sd", EqMP5}},
}

// IsAmbiguous returns true if another weapon shares the server class of e.
func IsAmbiguous(e EquipmentElement) bool {
	_, ok := ambiguousWeapons[e]
	return ok
}

// SameServerClass returns true if a and b can only be told apart by their model.
func SameServerClass(a, b EquipmentElement) bool {
	if a == b {
		return true
	}

	for _, m := range ambiguousWeapons[a] {
		if m.weapon == b {
			return true
		}
	}

	return false
}

// DisambiguateByModel resolves an ambiguous weapon by its model name.
// Returns false if the model matches none of the candidates.
func DisambiguateByModel(e EquipmentElement, model string) (EquipmentElement, bool) {
	for _, m := range ambiguousWeapons[e] {
		if strings.Contains(model, m.fragment) {
			return m.weapon, true
		}
	}
	return e, false
}

// Equipment is a weapon / piece of equipment belonging to a player.
// This also includes the skin and some additional data.
type Equipment struct {
	EntityID       int              // ID of the game entity corresponding to the weapon, 0 if not a game entity
	Weapon         EquipmentElement // The type of weapon which the equipment instantiates.
	OriginalString string           // E.g. 'models/weapons/w_rif_m4a1_s.mdl'. Used internally to differentiate alternative weapons (M4A4 / M4A1-S etc.).
	OwnerEntityID  int              // Entity id of the owning player, -1 if nobody carries it
	AmmoInMagazine int              // Amount of bullets in the weapon's magazine
	AmmoType       int
	UniqueID       ulid.ULID // Identifies the instance across entity slot reuse
}

// NewEquipment creates a new Equipment and sets the UniqueID.
func NewEquipment(eqName string) *Equipment {
	return &Equipment{
		Weapon:         MapEquipment(eqName),
		OriginalString: eqName,
		OwnerEntityID:  -1,
		UniqueID:       ulid.Make(),
	}
}

// Class returns the class of the equipment.
// E.g. pistol, smg, heavy etc.
func (e *Equipment) Class() EquipmentClass {
	return e.Weapon.Class()
}

// String returns a human readable name for the equipment.
// E.g. 'AK-47', 'UMP-45', 'Smoke Grenade' etc.
func (e *Equipment) String() string {
	return e.Weapon.String()
}
