package storage

import (
	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/shopspring/decimal"
)

func seedServices() []entities.Service {
	service := func(id int64, name, emoji, description, category string, minPrice int64) entities.Service {
		return entities.Service{
			ID:          id,
			Name:        name,
			Emoji:       emoji,
			Description: description,
			Category:    category,
			MinPrice:    decimal.NewFromInt(minPrice),
			IsActive:    true,
		}
	}

	return []entities.Service{
		service(1, "Spotify Premium", "🎵", "Музыка без рекламы, скачивание", "music", 199),
		service(2, "ChatGPT Plus", "🤖", "GPT-4, DALL-E, анализ файлов", "ai", 1490),
		service(3, "Claude Pro", "🤍", "Claude Opus, длинный контекст", "ai", 1590),
		service(4, "Gemini Advanced", "✨", "Gemini Ultra, Google Workspace", "ai", 1390),
		service(5, "Sora", "🎬", "Генерация видео от OpenAI", "ai", 1690),
		service(6, "Steam пополнение", "🎮", "Пополнение кошелька Steam", "games", 0),
		service(7, "Discord Nitro", "💜", "Кастомный тег, стикеры, буст", "games", 299),
		service(8, "Roblox", "⬛", "Пополнение Robux", "games", 199),
		service(9, "Brawl Stars", "💎", "Гемы и Brawl Pass", "games", 149),
	}
}

func seedVariants() []entities.Variant {
	variant := func(id, serviceID int64, duration string, price int64) entities.Variant {
		return entities.Variant{ID: id, ServiceID: serviceID, Duration: duration, Price: decimal.NewFromInt(price)}
	}

	return []entities.Variant{
		variant(1, 1, "1 месяц", 199), variant(2, 1, "3 месяца", 549), variant(3, 1, "6 месяцев", 999), variant(4, 1, "1 год", 1799),
		variant(5, 2, "1 месяц", 1490), variant(6, 2, "3 месяца", 3990),
		variant(7, 3, "1 месяц", 1590), variant(8, 3, "3 месяца", 4290),
		variant(9, 4, "1 месяц", 1390), variant(10, 4, "3 месяца", 3690),
		variant(11, 5, "1 месяц", 1690), variant(12, 5, "3 месяца", 4590),
		variant(15, 7, "1 месяц", 299), variant(16, 7, "3 месяца", 799), variant(17, 7, "1 год", 2799),
		variant(18, 8, "400 Robux", 199), variant(19, 8, "800 Robux", 369), variant(20, 8, "1700 Robux", 749),
		variant(21, 9, "30 гемов", 149), variant(22, 9, "80 гемов", 369), variant(23, 9, "Brawl Pass", 299),
	}
}
