package pipeline

import (
	"fmt"
	"strings"

	"github.com/vampirenirmal/storyforge/internal/retrieval"
)

// Prompt templates for the three drafting agents. Each stage has a narrow
// content-shape contract: the setting draft carries no dialogue or plot, the
// character draft carries voice and interiority, the plot draft integrates
// both at the requested length.

const settingSystemTemplate = `You are a novel worldbuilding specialist. Given a story beat, render the scene's environment, atmosphere and the worldview elements behind it (magic systems, geography, technology).

Requirements:
1. Focus on environment and atmosphere only.
2. Weave in the established worldview.
3. Keep it between 150 and 200 words.
4. Do not include conversation or plot advancement.

Worldview context:
%s`

const characterSystemTemplate = `You are a novel character specialist. Given a story beat and a setting draft, write dialogue, interiority and action that stay true to each character's established voice.

Requirements:
1. Follow the established character voices strictly.
2. Keep thoughts and reactions grounded and specific.
3. Keep it between 200 and 250 words.
4. Continue from the setting draft below.

Character context:
%s

Setting draft:
%s`

const plotSystemTemplate = `You are a novel plot specialist. Integrate the setting and character drafts into one finished passage that advances the story, planting foreshadowing where it fits.

Requirements:
1. Blend the setting and character material naturally.
2. Keep the plot moving; no padding.
3. Aim for roughly %d words in total.
4. Use natural paragraph breaks for readability.

Setting draft:
%s

Character draft:
%s`

func settingPrompts(beat string, context []retrieval.Passage) (string, string) {
	system := fmt.Sprintf(settingSystemTemplate, joinPassages(context, "no worldview context available"))
	user := fmt.Sprintf("Story beat: %s\n\nDescribe the scene's worldview and atmosphere.", beat)
	return system, user
}

func characterPrompts(beat string, context []retrieval.Passage, settingDraft string) (string, string) {
	system := fmt.Sprintf(characterSystemTemplate,
		joinPassages(context, "no character context available"), settingDraft)
	user := fmt.Sprintf("Story beat: %s\n\nWrite the characters' dialogue, thoughts and actions.", beat)
	return system, user
}

func plotPrompts(beat string, targetLength int, settingDraft, characterDraft string) (string, string) {
	system := fmt.Sprintf(plotSystemTemplate, targetLength, settingDraft, characterDraft)
	user := fmt.Sprintf("Story beat: %s\n\nIntegrate the drafts above into the final passage.", beat)
	return system, user
}

func joinPassages(passages []retrieval.Passage, fallback string) string {
	if len(passages) == 0 {
		return fallback
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}
