package demo

import (
	"github.com/sirupsen/logrus"

	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/events"
)

// afterTick runs once all messages of a frame have been applied.
func (p *Parser) afterTick() {
	p.refreshPlayers()

	gs := p.gameState

	for id, entity := range gs.infernoEntities {
		if inf := gs.infernos[id]; inf != nil {
			updateInfernoFires(entity, inf)
		}
	}

	for _, pl := range gs.playersByUserID {
		if !pl.IsConnected {
			continue
		}

		pl.TickCounters.Connected++

		if pl.IsAlive() {
			pl.TickCounters.Alive++
		}
	}
}

// refreshPlayers brings the players in line with the userinfo string table.
func (p *Parser) refreshPlayers() {
	gs := p.gameState
	connected := make(map[int]bool, len(p.rawPlayers))

	for _, entityID := range sortedKeys(p.rawPlayers) {
		info := p.rawPlayers[entityID]
		if info.isHltv {
			continue
		}

		pl := gs.playersByUserID[info.userID]
		if pl == nil {
			pl = p.bindNewPlayer(entityID, info)
		}

		pl.Name = info.name
		pl.SteamID64 = info.xuid
		pl.IsBot = info.isFakePlayer
		pl.IsConnected = true
		connected[info.userID] = true

		if gs.playersByEntityID[entityID] != pl {
			if gs.playersByEntityID[pl.EntityID] == pl {
				delete(gs.playersByEntityID, pl.EntityID)
			}

			pl.EntityID = entityID
			gs.playersByEntityID[entityID] = pl

			p.syncPlayerEntity(pl)
		}
	}

	for userID, pl := range gs.playersByUserID {
		if !connected[userID] {
			pl.IsConnected = false
		}
	}
}

// bindNewPlayer creates the player of a new connection.
// If it belongs to someone seen before, the old user id is redirected to the new one.
func (p *Parser) bindNewPlayer(entityID int, info *playerInfo) *common.Player {
	gs := p.gameState

	pl := common.NewPlayer()
	pl.UserID = info.userID
	pl.EntityID = entityID
	pl.Name = info.name
	pl.SteamID64 = info.xuid
	pl.IsBot = info.isFakePlayer
	pl.IsConnected = true

	old := gs.findPreviousConnection(pl)
	if old != nil {
		pl.TickCounters = old.TickCounters
		old.IsConnected = false

		gs.replacements[old.UserID] = pl.UserID
		delete(gs.playersByUserID, old.UserID)

		if gs.playersByEntityID[old.EntityID] == old {
			delete(gs.playersByEntityID, old.EntityID)
		}
	}

	gs.playersByUserID[pl.UserID] = pl

	p.logger.WithFields(logrus.Fields{
		"name":     pl.Name,
		"userID":   pl.UserID,
		"entityID": entityID,
	}).Debug("bound player")

	p.dispatch(events.PlayerBind{Player: pl})

	if old != nil {
		p.dispatch(events.PlayerReconnected{Player: pl, OldUserID: old.UserID})
	}

	return pl
}

// findPreviousConnection looks for a player with the same identity under a different user id.
// Previous players without a SteamID are matched by name, whatever the new SteamID is.
func (gs *GameState) findPreviousConnection(pl *common.Player) *common.Player {
	for _, userID := range sortedKeys(gs.playersByUserID) {
		old := gs.playersByUserID[userID]
		if old.UserID == pl.UserID {
			continue
		}

		if old.SteamID64 != 0 && old.SteamID64 == pl.SteamID64 {
			return old
		}

		if old.SteamID64 == 0 && old.Name == pl.Name {
			return old
		}
	}

	return nil
}

func (p *Parser) disconnectPlayer(pl *common.Player, reason string) {
	gs := p.gameState

	pl.IsConnected = false

	for entityID, info := range p.rawPlayers {
		if gs.resolveUserID(info.userID) == pl.UserID {
			delete(p.rawPlayers, entityID)
		}
	}

	if gs.playersByEntityID[pl.EntityID] == pl {
		delete(gs.playersByEntityID, pl.EntityID)
	}

	p.dispatch(events.PlayerDisconnected{Player: pl, Reason: reason})
}
