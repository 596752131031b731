package main

// Registers the RtMidi (ALSA) driver used by the portable transport.
import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
