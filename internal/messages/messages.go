package messages

import (
	"fmt"
	"strings"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func ErrorDefault() string {
	return "🚫 <b>Ошибка</b>\nПопробуйте ещё раз."
}

func AuthAdmin() string {
	return "Вы авторизированы как администратор! 👑\n\n" +
		"Используйте /admin для доступа к панели управления."
}

func AuthEmployee(fullName string) string {
	return fmt.Sprintf("Вы авторизированы как %s! ✅\n\nИспользуйте /report для заполнения отчета.", Escape(fullName))
}

func AuthUnknown() string {
	return "Ваш Telegram аккаунт не найден в системе. " +
		"Обратитесь к администратору для добавления в систему."
}

func AlreadyAuthorized(fullName string, isAdmin bool) string {
	if isAdmin {
		return "Вы уже авторизированы как администратор! 👑\n\nИспользуйте /admin для доступа к панели управления."
	}
	return fmt.Sprintf("Вы уже авторизированы как %s! ✅\n\nИспользуйте /report для заполнения отчета.", Escape(fullName))
}

func Help() string {
	return "Доступные команды:\n\n" +
		"/start - Первый запуск бота\n" +
		"/report - Заполнить отчет вручную\n" +
		"/help - Показать это сообщение\n\n" +
		"Бот автоматически напомнит о заполнении отчета.\n" +
		"Авторизация происходит автоматически по вашему Telegram ID."
}

func LogoutDone() string {
	return "Вы успешно вышли из системы.\n\nДля повторной авторизации используйте команду /start"
}

func NotUnderstood(isAdmin bool) string {
	if isAdmin {
		return "Не понимаю вас. Используйте:\n\n/admin - Панель администратора\n/help - Показать справку"
	}
	return "Не понимаю вас. Используйте:\n\n/report - Заполнить отчет\n/help - Показать справку"
}

func OutOfBand() string {
	return "Пожалуйста, ответьте на текущий вопрос. ✍️"
}

func ReportOnlyForEmployees() string {
	return "Заполнение отчета доступно только сотрудникам."
}

func ReportAlreadySubmitted() string {
	return "Вы уже сдали отчет за сегодня! ✅"
}

func ChooseTask() string {
	return "Заполнение отчета! 📝\n\nВыберите задачу, по которой хотите отчитаться:"
}

func GeneralReportOption() string {
	return "Общий отчет 📄"
}

func AskFeedback() string {
	return "Заполнение отчета! 📝\n\n" +
		"Расскажите, как вам работалось над сегодняшними задачами? " +
		"Были ли они интересными, с какими нюансами столкнулись?"
}

func AskDifficulties() string {
	return "Спасибо! 👍\n\n" +
		"Теперь расскажите о сложностях. С чем столкнулись, " +
		"что не получилось, где нужна помощь?"
}

func AskDailyReport() string {
	return "Отлично! 👌\n\n" +
		"И последнее: опишите, что было сделано за день. " +
		"Можете приложить ссылки на результаты."
}

func EmptyFeedback() string {
	return "Пожалуйста, введите ваш фидбек."
}

func EmptyDifficulties() string {
	return "Пожалуйста, расскажите о сложностях или напишите 'Нет сложностей'."
}

func EmptyDailyReport() string {
	return "Пожалуйста, опишите, что было сделано за день."
}

func Confirmation(feedback, difficulties, dailyReport string) string {
	return "Ваш отчет за сегодня:\n\n" +
		fmt.Sprintf("<b>Фидбек:</b>\n%s\n\n", Escape(feedback)) +
		fmt.Sprintf("<b>Сложности:</b>\n%s\n\n", Escape(difficulties)) +
		fmt.Sprintf("<b>Отчет за день:</b>\n%s\n\n", Escape(dailyReport)) +
		"Отправляем?"
}

func ConfirmButton() string { return "Да, отправить ✅" }
func RestartButton() string { return "Заполнить заново 🔄" }

func ReportSaved() string {
	return "Ваш отчет успешно сохранен. Спасибо! ✅"
}

func ReportSaveFailed() string {
	return "Произошла ошибка при сохранении отчета. Попробуйте еще раз."
}

func ReportRestart() string {
	return "Хорошо, давайте заполним отчет заново."
}

func AdminPanel() string {
	return "🔧 <b>Панель администратора</b>\n\nВыберите действие:"
}

func AdminSendTasksButton() string     { return "📋 Отправить задачи" }
func AdminRemindPendingButton() string { return "⏰ Отчет (не сдавшим)" }
func AdminRemindAllButton() string     { return "📢 Отчет (всем)" }
func AdminSendAllTasksButton() string  { return "🔄 Отправить все задачи всем" }
func AdminBroadcastButton() string     { return "📡 Сделать рассылку" }

func BroadcastPrompt() string {
	return "Отправьте сообщение для рассылки всем пользователям (текст или медиа):"
}

func NoEmployeesWithTasks(date string) string {
	return fmt.Sprintf("На %s нет сотрудников с задачами.", date)
}

func SelectionHeader(date string, total, selected, page int) string {
	text := fmt.Sprintf("📋 <b>Отправка задач на %s</b>\n\n", date) +
		fmt.Sprintf("Найдено сотрудников с задачами: %d\n", total) +
		fmt.Sprintf("Выбрано: %d\n", selected)
	if page > 0 {
		text += fmt.Sprintf("Страница: %d\n", page+1)
	}
	return text + "Выберите, кому отправить задачи:"
}

func NothingSelected() string {
	return "Не выбран ни один сотрудник!"
}

func SelectionCancelled() string {
	return "Отправка задач отменена."
}

func PrevPageButton() string       { return "⬅️ Назад" }
func NextPageButton() string       { return "➡️ Далее" }
func SendToSelectedButton() string { return "📤 Отправить выбранным" }
func SelectAllButton() string      { return "✅ Выбрать всех" }
func CancelButton() string         { return "❌ Отмена" }

func FanoutSummary(title string, sent, failed int) string {
	return fmt.Sprintf("📤 <b>%s</b>\n\n✅ Отправлено: %d\n❌ Не удалось отправить: %d", Escape(title), sent, failed)
}

func TasksForEmployee(fullName string, tasks []string) string {
	text := fmt.Sprintf("📋 Привет, %s!\n\nУ вас новые задачи на сегодня:\n\n", Escape(fullName))
	for _, t := range tasks {
		text += fmt.Sprintf("• %s\n", Escape(t))
	}
	return text
}

func RemindToday() string {
	return "Пришло время для отчета! 📝\n\nИспользуйте команду /report для заполнения."
}

func RemindLate() string {
	return "Кажется, вы забыли заполнить отчет за вчера. " +
		"Пожалуйста, не забудьте это сделать! ⏰\n\n" +
		"Используйте команду /report для заполнения отчета."
}

func RemindPending() string {
	return "Кажется, вы забыли заполнить отчет за сегодня. " +
		"Пожалуйста, не забудьте это сделать! ⏰"
}

func RemindAll() string {
	return "Коллеги, просьба срочно заполнить отчет и фидбек за сегодня! 📝"
}

func DeadlineWarning(tasks []string) string {
	text := "⏳ <b>Через 12 часов дедлайн по задачам:</b>\n\n"
	for _, t := range tasks {
		text += fmt.Sprintf("• %s\n", Escape(t))
	}
	return text
}

func Stats(date string, total, submitted int, missing []string) string {
	text := fmt.Sprintf("📊 <b>Статистика на %s</b>\n\n", date) +
		fmt.Sprintf("👥 Всего сотрудников: %d\n", total) +
		fmt.Sprintf("✅ Сдали отчет: %d\n", submitted) +
		fmt.Sprintf("⏳ Не сдали отчет: %d\n", len(missing))
	if len(missing) > 0 {
		text += "\n<b>Не сдали отчет:</b>\n"
		for _, name := range missing {
			text += fmt.Sprintf("• %s\n", Escape(name))
		}
	}
	return text
}
