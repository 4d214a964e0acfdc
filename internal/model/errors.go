package model

import "errors"

// Common errors used across the application
var (
	// Record errors
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordLocked   = errors.New("record is locked by another session")
	ErrRecordInvalid  = errors.New("record failed validation")
	ErrDocumentClosed = errors.New("document is closed")

	// Session errors
	ErrJoinRejected            = errors.New("join rejected")
	ErrDisconnectedBeforeReady = errors.New("player disconnected before ready")
	ErrNotConnected            = errors.New("player is not connected")
	ErrAlreadyConnected        = errors.New("player is already connected")
	ErrShuttingDown            = errors.New("shard is shutting down")

	// Character errors
	ErrCharacterNotReady = errors.New("character is not ready")
	ErrRigDetached       = errors.New("rig detached from world")

	// Monetization errors
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")
	ErrRegistrationClosed       = errors.New("registration is closed")
	ErrUnknownProduct           = errors.New("unknown product")
	ErrUnknownGamePass          = errors.New("unknown game pass")
	ErrGamePassNotOwned         = errors.New("game pass not owned")

	// Platform errors
	ErrPlatformUnavailable = errors.New("platform request failed")
	ErrBadgeNotFound       = errors.New("badge not found")
	ErrProductNotFound     = errors.New("product not found")
)
