package router

import "github.com/bwmarrin/discordgo"

// Reply is an ephemeral message response.
func Reply(content string) Result {
	return Result{Response: ReplyResponse(content)}
}

// ReplyResponse builds an ephemeral channel message response.
func ReplyResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

// UpdateMessage replaces the message carrying the component.
func UpdateMessage(content string, components ...discordgo.MessageComponent) Result {
	data := &discordgo.InteractionResponseData{Content: content}
	if components != nil {
		data.Components = components
	} else {
		data.Components = []discordgo.MessageComponent{}
	}
	return Result{Response: &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	}}
}

// DeferUpdate acknowledges a component callback without changing the
// message.
func DeferUpdate() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
}
